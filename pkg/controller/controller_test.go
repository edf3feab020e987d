package controller

import (
	"context"
	"strings"
	"testing"

	"github.com/go-go-golems/fleetctl/pkg/oplog"
	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	calls []string
	fail  map[string]error
}

func (f *fakeManager) record(op string, services []string) error {
	call := op + " " + strings.Join(services, ",")
	f.calls = append(f.calls, call)
	if err, ok := f.fail[call]; ok {
		return err
	}
	return nil
}

func (f *fakeManager) Up(_ context.Context, s ...string) error      { return f.record("up", s) }
func (f *fakeManager) Stop(_ context.Context, s ...string) error    { return f.record("stop", s) }
func (f *fakeManager) Restart(_ context.Context, s ...string) error { return f.record("restart", s) }
func (f *fakeManager) Pull(context.Context) error                   { return f.record("pull", nil) }
func (f *fakeManager) Build(context.Context) error                  { return f.record("build", nil) }

func newController(m *fakeManager) (*Controller, *oplog.Log) {
	log := oplog.Nop()
	return New(registry.MustNew(registry.DefaultServices()), m, log), log
}

func TestStart_WholeFleetAscending(t *testing.T) {
	m := &fakeManager{}
	c, log := newController(m)
	require.NoError(t, c.Start(context.Background(), ""))
	require.Equal(t, []string{
		"up neo4j", "up postgres", "up redis", "up api", "up scraper", "up dashboard",
	}, m.calls)
	require.Equal(t, 6, log.Count(oplog.LevelSuccess))
}

func TestStop_WholeFleetDescending(t *testing.T) {
	m := &fakeManager{}
	c, _ := newController(m)
	require.NoError(t, c.Stop(context.Background(), ""))
	require.Equal(t, []string{
		"stop dashboard", "stop scraper", "stop api", "stop redis", "stop postgres", "stop neo4j",
	}, m.calls)
}

func TestScopedOperationsTouchOneService(t *testing.T) {
	m := &fakeManager{}
	c, _ := newController(m)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx, "api"))
	require.NoError(t, c.Stop(ctx, "api"))
	require.NoError(t, c.Restart(ctx, "api"))
	require.Equal(t, []string{"up api", "stop api", "restart api"}, m.calls)
}

func TestUnknownService(t *testing.T) {
	m := &fakeManager{}
	c, _ := newController(m)
	err := c.Start(context.Background(), "nope")
	require.ErrorIs(t, err, ErrUnknownService)
	require.Empty(t, m.calls)
}

func TestFailureStopsFleetOperation(t *testing.T) {
	cause := errors.New("exit status 1")
	m := &fakeManager{fail: map[string]error{"up redis": cause}}
	c, log := newController(m)

	err := c.Start(context.Background(), "")
	var sce *ServiceControlError
	require.True(t, errors.As(err, &sce))
	require.Equal(t, "redis", sce.Service)
	require.ErrorIs(t, err, cause)
	require.Equal(t, []string{"up neo4j", "up postgres", "up redis"}, m.calls)
	require.Equal(t, 1, log.Count(oplog.LevelError))
}

func TestStartRoleAndUpdate(t *testing.T) {
	m := &fakeManager{}
	c, _ := newController(m)
	ctx := context.Background()

	require.NoError(t, c.StartRole(ctx, registry.RoleStatefulStore))
	require.Equal(t, []string{"up neo4j", "up postgres", "up redis"}, m.calls)

	m.calls = nil
	require.NoError(t, c.Update(ctx))
	require.Equal(t, "pull ", m.calls[0])
	require.Equal(t, "build ", m.calls[1])
	require.Equal(t, "restart neo4j", m.calls[2])
	require.Len(t, m.calls, 8)
}
