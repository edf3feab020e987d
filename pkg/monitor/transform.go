package monitor

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// RegisterDomainToUITransformer turns fleet events into UI messages: every
// snapshot is forwarded as is, transitions and sampling errors become event
// log lines.
func RegisterDomainToUITransformer(bus *Bus) {
	bus.AddHandler("fleetctl-domain-to-ui", TopicFleetEvents, func(msg *message.Message) error {
		defer msg.Ack()

		env, err := decode(msg)
		if err != nil {
			return err
		}

		appendEvent := func(e EventLogEntry) error {
			return publish(bus.Publisher, TopicUIMessages, UITypeEventAppend, e)
		}

		switch env.Type {
		case DomainTypeSnapshot:
			var snap Snapshot
			if err := json.Unmarshal(env.Payload, &snap); err != nil {
				return errors.Wrap(err, "unmarshal snapshot")
			}
			if err := publish(bus.Publisher, TopicUIMessages, UITypeSnapshot, snap); err != nil {
				return errors.Wrap(err, "publish ui snapshot")
			}
			if snap.Error != "" {
				return appendEvent(EventLogEntry{At: snap.At, Level: LogLevelError, Text: "status: " + snap.Error})
			}
		case DomainTypeServiceDown, DomainTypeServiceUp:
			var tr Transition
			if err := json.Unmarshal(env.Payload, &tr); err != nil {
				return errors.Wrap(err, "unmarshal transition")
			}
			level := LogLevelWarn
			if env.Type == DomainTypeServiceUp {
				level = LogLevelInfo
			}
			return appendEvent(EventLogEntry{
				At:    tr.When,
				Level: level,
				Text:  fmt.Sprintf("%s: %s -> %s", tr.Service, tr.From, tr.To),
			})
		}
		return nil
	})
}
