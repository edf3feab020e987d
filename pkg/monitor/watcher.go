package monitor

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/fleetctl/pkg/status"
	"github.com/pkg/errors"
)

type StatusSource interface {
	Status(ctx context.Context) ([]status.ServiceStatus, error)
}

// StatusWatcher samples the fleet every Interval and publishes a snapshot,
// plus a transition event whenever a service's run state changes.
type StatusWatcher struct {
	Project  string
	Source   StatusSource
	Interval time.Duration
	Pub      message.Publisher

	last map[string]string
}

func (w *StatusWatcher) Run(ctx context.Context) error {
	if w.Source == nil {
		return errors.New("missing Source")
	}
	if w.Pub == nil {
		return errors.New("missing Publisher")
	}
	if w.Interval <= 0 {
		w.Interval = 2 * time.Second
	}

	t := time.NewTicker(w.Interval)
	defer t.Stop()

	for {
		if err := w.emit(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (w *StatusWatcher) emit(ctx context.Context) error {
	now := time.Now()
	rows, err := w.Source.Status(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return publish(w.Pub, TopicFleetEvents, DomainTypeSnapshot, Snapshot{At: now, Project: w.Project, Error: err.Error()})
	}

	current := make(map[string]string, len(rows))
	for _, r := range rows {
		current[r.Service] = r.State
	}
	if w.last != nil {
		for _, r := range rows {
			prev, ok := w.last[r.Service]
			if !ok || prev == r.State {
				continue
			}
			typ := DomainTypeServiceDown
			if r.Running() {
				typ = DomainTypeServiceUp
			}
			tr := Transition{Service: r.Service, From: prev, To: r.State, When: now}
			if err := publish(w.Pub, TopicFleetEvents, typ, tr); err != nil {
				return err
			}
		}
	}
	w.last = current

	return publish(w.Pub, TopicFleetEvents, DomainTypeSnapshot, Snapshot{At: now, Project: w.Project, Services: rows})
}
