// Package health probes services once or polls them until the whole set is
// healthy, a bounded number of rounds, or the context is cancelled.
package health

import (
	"context"
	"time"

	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
)

var ErrCancelled = errors.New("health polling cancelled")

// cancelled matches ErrCancelled and unwraps to the context error.
type cancelled struct{ cause error }

func (e *cancelled) Error() string        { return ErrCancelled.Error() + ": " + e.cause.Error() }
func (e *cancelled) Is(target error) bool { return target == ErrCancelled }
func (e *cancelled) Unwrap() error        { return e.cause }

// Checker runs one health capability. A nil error means healthy.
type Checker interface {
	Healthy(ctx context.Context, svc registry.ServiceDescriptor) error
}

type Result struct {
	Service   string    `json:"service"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

type PollResult struct {
	AllHealthy bool
	Attempts   int
	Results    []Result
}

// Unhealthy returns the names of services that failed the last round.
func (p PollResult) Unhealthy() []string {
	var out []string
	for _, r := range p.Results {
		if !r.Healthy {
			out = append(out, r.Service)
		}
	}
	return out
}

type Probe struct {
	checker Checker
	timeout time.Duration
	now     func() time.Time
}

// NewProbe bounds every check by timeout (zero means 5s).
func NewProbe(checker Checker, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Probe{checker: checker, timeout: timeout, now: time.Now}
}

func (p *Probe) Check(ctx context.Context, svc registry.ServiceDescriptor) Result {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res := Result{Service: svc.Name}
	err := p.checker.Healthy(cctx, svc)
	res.CheckedAt = p.now()
	if err != nil {
		if cctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = errors.Wrapf(err, "timed out after %s", p.timeout)
		}
		res.Error = err.Error()
		return res
	}
	res.Healthy = true
	return res
}

// CheckAll checks every service in order; individual failures do not stop
// the round.
func (p *Probe) CheckAll(ctx context.Context, services []registry.ServiceDescriptor) []Result {
	out := make([]Result, 0, len(services))
	for _, svc := range services {
		out = append(out, p.Check(ctx, svc))
	}
	return out
}

// PollUntilHealthy runs up to maxAttempts rounds, sleeping interval between
// rounds but not after the last. Exhaustion is reported through AllHealthy,
// not as an error. Cancellation returns ErrCancelled with the partial result.
func (p *Probe) PollUntilHealthy(ctx context.Context, services []registry.ServiceDescriptor, maxAttempts int, interval time.Duration) (PollResult, error) {
	var pr PollResult
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return pr, &cancelled{cause: err}
		}
		pr.Attempts = attempt
		pr.Results = p.CheckAll(ctx, services)
		pr.AllHealthy = allHealthy(pr.Results)
		if pr.AllHealthy {
			return pr, nil
		}
		if attempt == maxAttempts {
			break
		}
		if err := Wait(ctx, interval); err != nil {
			return pr, &cancelled{cause: err}
		}
	}
	return pr, nil
}

func allHealthy(rs []Result) bool {
	for _, r := range rs {
		if !r.Healthy {
			return false
		}
	}
	return true
}

// Wait sleeps for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
