package monitor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-go-golems/fleetctl/pkg/status"
)

// RunPlain prints the status table every interval until ctx is done. It is
// the fallback when no terminal is attached.
func RunPlain(ctx context.Context, src StatusSource, interval time.Duration, w io.Writer) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		rows, err := src.Status(ctx)
		if ctx.Err() != nil {
			return nil
		}
		stamp := time.Now().Format("15:04:05")
		if err != nil {
			_, _ = fmt.Fprintf(w, "[%s] status unavailable: %v\n", stamp, err)
		} else {
			_, _ = fmt.Fprintf(w, "[%s]\n%s\n", stamp, status.RenderTable(rows))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
