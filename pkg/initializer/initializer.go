// Package initializer bootstraps a fresh environment: it checks the
// substrate, scaffolds directories, resolves the environment, brings up the
// stores, applies schema, starts the fleet, waits for health, fires the
// first workload cycle and reports.
//
// Only a missing prerequisite (or a scaffold/cancellation error) stops the
// sequence. Every other failure is logged as a warning and the sequence
// continues in a possibly degraded state.
package initializer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/fleetctl/pkg/config"
	"github.com/go-go-golems/fleetctl/pkg/health"
	"github.com/go-go-golems/fleetctl/pkg/oplog"
	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/go-go-golems/fleetctl/pkg/trigger"
	"github.com/pkg/errors"
)

type Phase string

const (
	PhaseNotStarted            Phase = "NotStarted"
	PhaseCheckingPrerequisites Phase = "CheckingPrerequisites"
	PhaseScaffolding           Phase = "Scaffolding"
	PhaseResolvingEnv          Phase = "ResolvingEnv"
	PhaseStartingStores        Phase = "StartingStores"
	PhaseInitializingSchema    Phase = "InitializingSchema"
	PhaseBuildingFleet         Phase = "BuildingFleet"
	PhaseWaitingHealthy        Phase = "WaitingHealthy"
	PhaseTriggeringWorkload    Phase = "TriggeringWorkload"
	PhaseReporting             Phase = "Reporting"
	PhaseDone                  Phase = "Done"
	PhaseFailed                Phase = "Failed"
)

var ErrPrerequisiteMissing = errors.New("prerequisite missing")

type Prerequisite interface {
	Ping(ctx context.Context) error
}

type Controller interface {
	StartRole(ctx context.Context, role registry.Role) error
	Build(ctx context.Context) error
}

type SchemaRunner interface {
	Exec(ctx context.Context, service string, argv []string, input io.Reader) error
}

type Poller interface {
	PollUntilHealthy(ctx context.Context, services []registry.ServiceDescriptor, maxAttempts int, interval time.Duration) (health.PollResult, error)
}

type Reporter interface {
	Report(ctx context.Context, w io.Writer) error
}

// Components are built once the environment is resolved, since every
// substrate call needs the resolved credentials.
type Components struct {
	Controller Controller
	Schema     SchemaRunner
	Poller     Poller
	Publisher  message.Publisher
	Reporter   Reporter
}

type Factory func(cfg config.Config) Components

type Report struct {
	Phases       []Phase
	Final        Phase
	EnvFileFound bool
	Health       health.PollResult
	Warnings     []string
}

// Reached reports whether phase was visited.
func (r *Report) Reached(p Phase) bool {
	for _, v := range r.Phases {
		if v == p {
			return true
		}
	}
	return false
}

type Initializer struct {
	cfg     config.Config
	prereq  Prerequisite
	factory Factory
	environ []string
	out     io.Writer
	log     *oplog.Log
	wait    func(context.Context, time.Duration) error
}

type Option func(*Initializer)

func WithEnviron(environ []string) Option { return func(i *Initializer) { i.environ = environ } }
func WithOutput(w io.Writer) Option       { return func(i *Initializer) { i.out = w } }
func WithWait(wait func(context.Context, time.Duration) error) Option {
	return func(i *Initializer) { i.wait = wait }
}

func New(cfg config.Config, prereq Prerequisite, factory Factory, log *oplog.Log, opts ...Option) *Initializer {
	if log == nil {
		log = oplog.Nop()
	}
	i := &Initializer{
		cfg:     cfg,
		prereq:  prereq,
		factory: factory,
		environ: os.Environ(),
		out:     io.Discard,
		log:     log,
		wait:    health.Wait,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

type run struct {
	*Initializer
	report *Report
}

func (r *run) enter(p Phase) {
	r.report.Phases = append(r.report.Phases, p)
	r.report.Final = p
	r.log.Info().Str("phase", string(p)).Msg("phase")
}

func (r *run) warn(err error, msg string) {
	r.report.Warnings = append(r.report.Warnings, msg+": "+err.Error())
	r.log.Warn().Err(err).Msg(msg)
}

func (r *run) fail(err error) (*Report, error) {
	r.report.Phases = append(r.report.Phases, PhaseFailed)
	r.report.Final = PhaseFailed
	r.log.Error().Err(err).Msg("initialization failed")
	return r.report, err
}

func (i *Initializer) Run(ctx context.Context) (*Report, error) {
	r := &run{Initializer: i, report: &Report{Phases: []Phase{PhaseNotStarted}, Final: PhaseNotStarted}}

	r.enter(PhaseCheckingPrerequisites)
	if err := i.prereq.Ping(ctx); err != nil {
		return r.fail(errors.Wrapf(ErrPrerequisiteMissing, "%v", err))
	}

	r.enter(PhaseScaffolding)
	if err := i.scaffold(); err != nil {
		return r.fail(err)
	}

	r.enter(PhaseResolvingEnv)
	cfg, found, err := config.ResolveEnv(i.cfg, i.environ)
	if err != nil {
		r.warn(err, "env file unreadable, using defaults")
		noFile := i.cfg
		noFile.EnvFile = ""
		cfg, _, _ = config.ResolveEnv(noFile, i.environ)
	} else if !found {
		r.warn(errors.Errorf("%s not found", i.cfg.EnvFile), "using built-in environment defaults")
	}
	r.report.EnvFileFound = found
	comps := i.factory(cfg)

	r.enter(PhaseStartingStores)
	if err := comps.Controller.StartRole(ctx, registry.RoleStatefulStore); err != nil {
		r.warn(err, "store bring-up failed")
	}
	if err := i.wait(ctx, cfg.Timings.StoreWarmup); err != nil {
		return r.fail(errors.Wrap(err, "store warm-up"))
	}

	r.enter(PhaseInitializingSchema)
	for _, st := range cfg.Schema {
		var input io.Reader
		if st.Input != "" {
			input = strings.NewReader(st.Input)
		}
		if err := comps.Schema.Exec(ctx, st.Service, st.Command, input); err != nil {
			r.warn(err, "schema statement "+st.Name+" failed")
			continue
		}
		r.log.Success().Str("statement", st.Name).Str("service", st.Service).Msg("schema applied")
	}
	if err := ctx.Err(); err != nil {
		return r.fail(err)
	}

	r.enter(PhaseBuildingFleet)
	if err := comps.Controller.Build(ctx); err != nil {
		r.warn(err, "fleet build/start failed, continuing degraded")
	}

	r.enter(PhaseWaitingHealthy)
	pr, err := comps.Poller.PollUntilHealthy(ctx, cfg.Fleet.All(), cfg.Timings.HealthAttempts, cfg.Timings.HealthInterval)
	r.report.Health = pr
	if err != nil {
		return r.fail(err)
	}
	if pr.AllHealthy {
		r.log.Success().Int("attempts", pr.Attempts).Msg("fleet healthy")
	} else {
		r.warn(errors.Errorf("unhealthy after %d attempts: %s", pr.Attempts, strings.Join(pr.Unhealthy(), ", ")), "health wait exhausted")
	}

	r.enter(PhaseTriggeringWorkload)
	if err := trigger.Fire(ctx, comps.Publisher, cfg.Trigger.Topic, cfg.Trigger.Payload); err != nil {
		r.warn(err, "workload trigger failed")
	} else {
		r.log.Success().Str("topic", cfg.Trigger.Topic).Msg("workload triggered")
	}
	if err := i.wait(ctx, cfg.Timings.Settle); err != nil {
		return r.fail(errors.Wrap(err, "settle"))
	}

	r.enter(PhaseReporting)
	if err := comps.Reporter.Report(ctx, i.out); err != nil {
		r.warn(err, "status report failed")
	}

	r.enter(PhaseDone)
	if len(r.report.Warnings) > 0 {
		r.log.Warn().Int("warnings", len(r.report.Warnings)).Msg("initialization finished degraded")
	} else {
		r.log.Success().Msg("initialization complete")
	}
	return r.report, nil
}

func (i *Initializer) scaffold() error {
	for _, d := range i.cfg.Directories {
		p := d
		if !filepath.IsAbs(p) {
			p = filepath.Join(i.cfg.ProjectDir, d)
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", d)
		}
	}
	return nil
}
