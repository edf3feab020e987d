package cmds

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-go-golems/fleetctl/pkg/capability"
	"github.com/go-go-golems/fleetctl/pkg/compose"
	"github.com/go-go-golems/fleetctl/pkg/config"
	"github.com/go-go-golems/fleetctl/pkg/controller"
	"github.com/go-go-golems/fleetctl/pkg/health"
	"github.com/go-go-golems/fleetctl/pkg/lock"
	"github.com/go-go-golems/fleetctl/pkg/oplog"
	"github.com/go-go-golems/fleetctl/pkg/state"
	"github.com/go-go-golems/fleetctl/pkg/status"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Overridden in tests to record substrate calls instead of running docker.
var (
	newRunner = func() compose.Runner { return compose.ExecRunner{} }
	environ   = os.Environ
	now       = time.Now
)

type rootOptions struct {
	ProjectDir string
	Config     string
	EnvFile    string
}

func AddRootFlags(root *cobra.Command) {
	root.PersistentFlags().String("project-dir", "", "Project directory holding the compose file (defaults to current directory)")
	root.PersistentFlags().String("config", "", "Path to fleet config (defaults to fleet.yaml under project-dir)")
	root.PersistentFlags().String("env-file", "", "Path to env file (defaults to .env under project-dir)")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	projectDir, err := cmd.Root().PersistentFlags().GetString("project-dir")
	if err != nil {
		return rootOptions{}, err
	}
	if projectDir == "" {
		projectDir, err = os.Getwd()
		if err != nil {
			return rootOptions{}, err
		}
	}
	projectDir, err = filepath.Abs(projectDir)
	if err != nil {
		return rootOptions{}, err
	}

	cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return rootOptions{}, err
	}
	if cfgPath == "" {
		cfgPath = config.DefaultPath(projectDir)
	} else if !filepath.IsAbs(cfgPath) {
		cfgPath = filepath.Join(projectDir, cfgPath)
	}

	envFile, err := cmd.Root().PersistentFlags().GetString("env-file")
	if err != nil {
		return rootOptions{}, err
	}

	return rootOptions{ProjectDir: projectDir, Config: cfgPath, EnvFile: envFile}, nil
}

type sessionOptions struct {
	// Mutating sessions hold the fleet lock for their whole lifetime.
	Mutating bool
	// Quiet keeps the operation log off the console (full-screen UIs).
	Quiet bool
	// RawEnv skips env resolution; the caller resolves it itself.
	RawEnv bool
}

// session is everything one invocation needs: resolved config, its
// operation log, the fleet lock and the substrate.
type session struct {
	cfg     config.Config
	log     *oplog.Log
	lock    *lock.Lock
	compose *compose.Compose
	caps    *capability.Dispatcher
	out     io.Writer
}

func openSession(cmd *cobra.Command, name string, so sessionOptions) (*session, error) {
	opts, err := getRootOptions(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(config.LoadOptions{ProjectDir: opts.ProjectDir, ConfigPath: opts.Config, EnvFile: opts.EnvFile})
	if err != nil {
		return nil, err
	}

	var console io.Writer = cmd.ErrOrStderr()
	if so.Quiet {
		console = nil
	}
	l, err := oplog.Open(state.LogsDir(cfg.ProjectDir), name, console, now())
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: l, out: cmd.OutOrStdout()}

	if so.Mutating {
		lk, err := lock.Acquire(state.LockPath(cfg.ProjectDir))
		if err != nil {
			l.Error().Err(err).Msg("fleet busy")
			_ = l.Close()
			return nil, err
		}
		s.lock = lk
	}

	if !so.RawEnv {
		resolved, found, err := config.ResolveEnv(cfg, environ())
		if err != nil {
			_ = s.close()
			return nil, err
		}
		if !found {
			l.Debug().Str("env_file", cfg.EnvFile).Msg("env file not found, using defaults")
		}
		s.cfg = resolved
	}
	s.compose = s.newCompose(s.cfg)
	s.caps = capability.NewDispatcher(s.compose, s.cfg.Env)
	return s, nil
}

func (s *session) newCompose(cfg config.Config) *compose.Compose {
	return compose.New(newRunner(), compose.Options{
		Project:     cfg.Project,
		ComposeFile: cfg.ComposeFile,
		Dir:         cfg.ProjectDir,
		Env:         cfg.Environ(environ()),
		StopTimeout: cfg.Timings.StopTimeout,
	})
}

func (s *session) controller() *controller.Controller {
	return controller.New(s.cfg.Fleet, s.compose, s.log)
}

func (s *session) probe() *health.Probe {
	return health.NewProbe(s.caps, s.cfg.Timings.ProbeTimeout)
}

func (s *session) reporter() *status.Reporter {
	return status.NewReporter(s.cfg.Fleet, s.compose)
}

func (s *session) close() error {
	var err error
	if s.lock != nil {
		err = s.lock.Release()
	}
	if cerr := s.log.Close(); err == nil {
		err = cerr
	}
	return err
}

// finish closes the session and tags a failure with the log file path.
func (s *session) finish(err error) error {
	_ = s.close()
	if err == nil {
		return nil
	}
	return &loggedError{err: err, path: s.log.Path()}
}

type loggedError struct {
	err  error
	path string
}

func (e *loggedError) Error() string { return e.err.Error() }
func (e *loggedError) Unwrap() error { return e.err }

// withSession opens a session, runs fn and finishes the session.
func withSession(cmd *cobra.Command, name string, so sessionOptions, fn func(s *session) error) error {
	s, err := openSession(cmd, name, so)
	if err != nil {
		return errors.Wrap(err, name)
	}
	return s.finish(fn(s))
}
