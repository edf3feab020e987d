package initializer

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	gochannel "github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/fleetctl/pkg/config"
	"github.com/go-go-golems/fleetctl/pkg/health"
	"github.com/go-go-golems/fleetctl/pkg/oplog"
	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakePrereq struct{ err error }

func (f fakePrereq) Ping(context.Context) error { return f.err }

// fakeEnv plays every component and records what it was asked to do.
type fakeEnv struct {
	calls      []string
	statements []string
	buildErr   error
	healthy    bool
	reported   int
	env        map[string]string
	published  []string
}

func (f *fakeEnv) StartRole(_ context.Context, role registry.Role) error {
	f.calls = append(f.calls, "start-role "+string(role))
	return nil
}

func (f *fakeEnv) Build(context.Context) error {
	f.calls = append(f.calls, "build")
	return f.buildErr
}

func (f *fakeEnv) Exec(_ context.Context, service string, argv []string, _ io.Reader) error {
	// Constraint statements are create-if-not-exists, so re-running is fine.
	f.statements = append(f.statements, service+": "+config.ExpandArgs(argv, f.env)[len(argv)-1])
	return nil
}

func (f *fakeEnv) PollUntilHealthy(_ context.Context, services []registry.ServiceDescriptor, attempts int, _ time.Duration) (health.PollResult, error) {
	f.calls = append(f.calls, "poll")
	pr := health.PollResult{AllHealthy: f.healthy, Attempts: attempts}
	for _, s := range services {
		pr.Results = append(pr.Results, health.Result{Service: s.Name, Healthy: f.healthy})
	}
	return pr, nil
}

func (f *fakeEnv) Report(_ context.Context, w io.Writer) error {
	f.reported++
	_, err := io.WriteString(w, "status table\n")
	return err
}

func (f *fakeEnv) Publish(topic string, msgs ...*message.Message) error {
	for _, m := range msgs {
		f.published = append(f.published, topic+" "+string(m.Payload))
	}
	return nil
}

func (f *fakeEnv) Close() error { return nil }

func (f *fakeEnv) factory(cfg config.Config) Components {
	f.env = cfg.Env
	return Components{Controller: f, Schema: f, Poller: f, Publisher: f, Reporter: f}
}

type waits struct{ got []time.Duration }

func (w *waits) wait(ctx context.Context, d time.Duration) error {
	w.got = append(w.got, d)
	return ctx.Err()
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(config.LoadOptions{ProjectDir: t.TempDir()})
	require.NoError(t, err)
	return cfg
}

func TestRun_PrerequisiteFailureHasNoSideEffects(t *testing.T) {
	cfg := testConfig(t)
	f := &fakeEnv{}
	called := false
	factory := func(c config.Config) Components {
		called = true
		return f.factory(c)
	}

	rep, err := New(cfg, fakePrereq{err: errors.New("Cannot connect to the Docker daemon")}, factory, nil).Run(context.Background())
	require.ErrorIs(t, err, ErrPrerequisiteMissing)
	require.Equal(t, PhaseFailed, rep.Final)
	require.Equal(t, []Phase{PhaseNotStarted, PhaseCheckingPrerequisites, PhaseFailed}, rep.Phases)
	require.False(t, called)

	entries, err := os.ReadDir(cfg.ProjectDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRun_FullSequenceIsRepeatable(t *testing.T) {
	cfg := testConfig(t)
	for run := 0; run < 2; run++ {
		f := &fakeEnv{healthy: true}
		w := &waits{}
		var out bytes.Buffer
		log := oplog.Nop()

		rep, err := New(cfg, fakePrereq{}, f.factory, log,
			WithEnviron([]string{"NEO4J_USER=graph"}), WithOutput(&out), WithWait(w.wait)).Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, []Phase{
			PhaseNotStarted, PhaseCheckingPrerequisites, PhaseScaffolding, PhaseResolvingEnv,
			PhaseStartingStores, PhaseInitializingSchema, PhaseBuildingFleet, PhaseWaitingHealthy,
			PhaseTriggeringWorkload, PhaseReporting, PhaseDone,
		}, rep.Phases)
		require.Equal(t, []string{"start-role stateful-store", "build", "poll"}, f.calls)
		require.Len(t, f.statements, 3)
		require.Equal(t, []time.Duration{30 * time.Second, 120 * time.Second}, w.got)
		require.Equal(t, []string{`scraper:trigger {"action":"start_cycle"}`}, f.published)
		require.Equal(t, "graph", f.env["NEO4J_USER"])
		require.Equal(t, "status table\n", out.String())
		require.False(t, rep.EnvFileFound)
		// the only warning is the missing env file
		require.Len(t, rep.Warnings, 1)
	}

	for _, d := range config.DefaultDirectories() {
		require.DirExists(t, filepath.Join(cfg.ProjectDir, d))
	}
}

func TestRun_DegradedRunStillReports(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.EnvFile, []byte("POSTGRES_DB=shop\n"), 0o600))
	f := &fakeEnv{buildErr: errors.New("build failed"), healthy: false}
	w := &waits{}

	rep, err := New(cfg, fakePrereq{}, f.factory, nil, WithWait(w.wait), WithEnviron(nil)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseDone, rep.Final)
	require.True(t, rep.Reached(PhaseReporting))
	require.True(t, rep.EnvFileFound)
	require.Equal(t, "shop", f.env["POSTGRES_DB"])
	require.False(t, rep.Health.AllHealthy)
	require.Len(t, rep.Warnings, 2)
	require.Equal(t, 1, f.reported)
}

func TestRun_UnparsableEnvFileFallsBackToDefaults(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.EnvFile, []byte("this is not an env line\n"), 0o600))
	f := &fakeEnv{healthy: true}
	w := &waits{}

	rep, err := New(cfg, fakePrereq{}, f.factory, nil, WithWait(w.wait), WithEnviron(nil)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, PhaseDone, rep.Final)
	require.NotContains(t, rep.Phases, PhaseFailed)
	require.Equal(t, config.DefaultEnv()["POSTGRES_DB"], f.env["POSTGRES_DB"])
	require.Len(t, rep.Warnings, 1)
	require.Contains(t, rep.Warnings[0], "env file unreadable")
}

func TestRun_CancellationEndsInFailed(t *testing.T) {
	cfg := testConfig(t)
	f := &fakeEnv{healthy: true}
	ctx, cancel := context.WithCancel(context.Background())
	wait := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	rep, err := New(cfg, fakePrereq{}, f.factory, nil, WithWait(wait)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, PhaseFailed, rep.Final)
	require.False(t, rep.Reached(PhaseInitializingSchema))
	require.Zero(t, f.reported)
}

func TestRun_TriggerOverWatermillPubSub(t *testing.T) {
	cfg := testConfig(t)
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1}, watermill.NopLogger{})
	defer func() { _ = pubsub.Close() }()
	msgs, err := pubsub.Subscribe(context.Background(), cfg.Trigger.Topic)
	require.NoError(t, err)

	f := &fakeEnv{healthy: true}
	factory := func(c config.Config) Components {
		comps := f.factory(c)
		comps.Publisher = pubsub
		return comps
	}
	w := &waits{}
	_, err = New(cfg, fakePrereq{}, factory, nil, WithWait(w.wait)).Run(context.Background())
	require.NoError(t, err)

	select {
	case m := <-msgs:
		require.Equal(t, cfg.Trigger.Payload, string(m.Payload))
		m.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("trigger not delivered")
	}
}
