package status

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-go-golems/fleetctl/pkg/compose"
	"github.com/go-go-golems/fleetctl/pkg/controller"
	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
)

type LogSource interface {
	Logs(ctx context.Context, opts compose.LogsOptions, w io.Writer) error
}

type LogOptions struct {
	Follow bool
	Tail   int
	Since  string
}

type LogStreamer struct {
	fleet registry.Fleet
	src   LogSource
	now   func() time.Time
}

func NewLogStreamer(fleet registry.Fleet, src LogSource) *LogStreamer {
	return &LogStreamer{fleet: fleet, src: src, now: time.Now}
}

// Logs writes the tail of one service's logs, or of every service when
// service is empty. With Follow it streams until ctx is cancelled, which is
// not an error.
func (l *LogStreamer) Logs(ctx context.Context, service string, opts LogOptions, w io.Writer) error {
	lo := compose.LogsOptions{Follow: opts.Follow, Tail: opts.Tail}
	if service != "" {
		if _, ok := l.fleet.Lookup(service); !ok {
			return errors.Wrapf(controller.ErrUnknownService, "%q", service)
		}
		lo.Services = []string{service}
	}
	if opts.Since != "" {
		since, err := ParseSince(opts.Since, l.now())
		if err != nil {
			return err
		}
		lo.Since = since
	}

	err := l.src.Logs(ctx, lo, w)
	if err != nil && opts.Follow && errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}

// ParseSince accepts a duration ("15m", meaning that long ago) or any date
// format dateparse understands, and returns an RFC 3339 timestamp.
func ParseSince(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			d = -d
		}
		return now.Add(-d).UTC().Format(time.RFC3339), nil
	}
	t, err := dateparse.ParseIn(s, now.Location())
	if err != nil {
		return "", errors.Wrapf(err, "parse --since %q", s)
	}
	return t.UTC().Format(time.RFC3339), nil
}
