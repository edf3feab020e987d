package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// scripted reports a service healthy once it has been checked healthyAfter times.
type scripted struct {
	mu           sync.Mutex
	calls        map[string]int
	healthyAfter map[string]int
	block        bool
}

func (s *scripted) Healthy(ctx context.Context, svc registry.ServiceDescriptor) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[svc.Name]++
	n, ok := s.healthyAfter[svc.Name]
	if ok && s.calls[svc.Name] >= n {
		return nil
	}
	return errors.New("not yet")
}

func services(names ...string) []registry.ServiceDescriptor {
	out := make([]registry.ServiceDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, registry.ServiceDescriptor{Name: n, HealthCheck: registry.CapabilityRef{Kind: registry.KindRunning}})
	}
	return out
}

func TestPoll_StopsWhenAllHealthy(t *testing.T) {
	c := &scripted{healthyAfter: map[string]int{"a": 1, "b": 2}}
	pr, err := NewProbe(c, time.Second).PollUntilHealthy(context.Background(), services("a", "b"), 5, time.Millisecond)
	require.NoError(t, err)
	require.True(t, pr.AllHealthy)
	require.Equal(t, 2, pr.Attempts)
	// No early abort: a is checked every round.
	require.Equal(t, 2, c.calls["a"])
}

func TestPoll_ExhaustionIsNotAnError(t *testing.T) {
	interval := 20 * time.Millisecond
	c := &scripted{healthyAfter: map[string]int{"a": 1}}
	start := time.Now()
	pr, err := NewProbe(c, time.Second).PollUntilHealthy(context.Background(), services("a", "never"), 3, interval)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.False(t, pr.AllHealthy)
	require.Equal(t, 3, pr.Attempts)
	require.Equal(t, []string{"never"}, pr.Unhealthy())
	require.Equal(t, 3, c.calls["never"])
	// Two sleeps between three rounds, none after the last.
	require.GreaterOrEqual(t, elapsed, 2*interval)
	require.Less(t, elapsed, 3*interval+25*time.Millisecond)
}

func TestPoll_CancellationReturnsPromptly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &scripted{}
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	pr, err := NewProbe(c, time.Second).PollUntilHealthy(ctx, services("a"), 60, 10*time.Second)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, 1, pr.Attempts)
	require.Len(t, pr.Results, 1)
}

func TestCheck_TimesOut(t *testing.T) {
	res := NewProbe(&scripted{block: true}, 20*time.Millisecond).Check(context.Background(), services("slow")[0])
	require.False(t, res.Healthy)
	require.Contains(t, res.Error, "timed out")
	require.False(t, res.CheckedAt.IsZero())
}

func TestWait_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	require.NoError(t, Wait(context.Background(), time.Millisecond))
}
