// Package capability carries out the health, dump and load capabilities a
// service descriptor names, against the compose substrate.
package capability

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-go-golems/fleetctl/pkg/compose"
	"github.com/go-go-golems/fleetctl/pkg/config"
	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
)

// Substrate is the part of compose.Compose the dispatcher needs.
type Substrate interface {
	Ps(ctx context.Context) ([]compose.Container, error)
	Exec(ctx context.Context, service string, stdin io.Reader, stdout io.Writer, argv ...string) error
	CopyFrom(ctx context.Context, service, containerPath, hostPath string) error
	CopyTo(ctx context.Context, hostPath, service, containerPath string) error
	Run(ctx context.Context, service string, stdin io.Reader, stdout io.Writer, argv ...string) error
	Stop(ctx context.Context, services ...string) error
	Up(ctx context.Context, services ...string) error
}

var _ Substrate = (*compose.Compose)(nil)

// restartTimeout bounds bringing a service back after an offline command,
// which happens even when the caller was cancelled.
const restartTimeout = 2 * time.Minute

var (
	ErrNotRunning      = errors.New("service not running")
	ErrUnsupportedKind = errors.New("unsupported capability kind")
)

type Dispatcher struct {
	sub    Substrate
	env    map[string]string
	client *http.Client
}

func NewDispatcher(sub Substrate, env map[string]string) *Dispatcher {
	return &Dispatcher{sub: sub, env: env, client: &http.Client{}}
}

// Running reports whether the substrate shows a running container for svc.
func (d *Dispatcher) Running(ctx context.Context, service string) (bool, error) {
	cs, err := d.sub.Ps(ctx)
	if err != nil {
		return false, errors.Wrap(err, "list containers")
	}
	for _, c := range cs {
		if c.Service == service && c.Running() {
			return true, nil
		}
	}
	return false, nil
}

// Healthy runs the service's health capability once. A nil error means healthy.
// Timeouts come from ctx.
func (d *Dispatcher) Healthy(ctx context.Context, svc registry.ServiceDescriptor) error {
	ref := svc.HealthCheck
	switch ref.Kind {
	case registry.KindTCP:
		var dl net.Dialer
		conn, err := dl.DialContext(ctx, "tcp", d.expand(ref.Address))
		if err != nil {
			return errors.Wrapf(err, "tcp %s", ref.Address)
		}
		_ = conn.Close()
		return nil
	case registry.KindHTTP:
		return d.httpGet(ctx, d.expand(ref.URL))
	case registry.KindExec:
		if err := d.sub.Exec(ctx, svc.Name, nil, io.Discard, d.expandAll(ref.Command)...); err != nil {
			return errors.Wrap(err, "health command")
		}
		return nil
	case registry.KindRunning:
		ok, err := d.Running(ctx, svc.Name)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotRunning
		}
		return nil
	default:
		return errors.Wrapf(ErrUnsupportedKind, "health %q", ref.Kind)
	}
}

func (d *Dispatcher) httpGet(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build health request")
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", url)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return errors.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	return nil
}

// Dump writes the service's data to the host file dest. On failure any
// partially written dest is removed.
func (d *Dispatcher) Dump(ctx context.Context, svc registry.ServiceDescriptor, dest string) (err error) {
	if svc.Dump == nil {
		return errors.Errorf("%s has no dump capability", svc.Name)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	ref := *svc.Dump
	switch ref.Kind {
	case registry.KindExecStdout, registry.KindOfflineStdout:
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return errors.Wrap(err, "create dump file")
		}
		run := d.sub.Exec
		if ref.Kind == registry.KindOfflineStdout {
			run = d.offline
		}
		if err := run(ctx, svc.Name, nil, f, d.expandAll(ref.Command)...); err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "dump %s", svc.Name)
		}
		return errors.Wrap(f.Close(), "close dump file")
	case registry.KindCopy:
		if err := d.pre(ctx, svc.Name, ref); err != nil {
			return errors.Wrapf(err, "prepare dump %s", svc.Name)
		}
		if err := d.sub.CopyFrom(ctx, svc.Name, ref.Path, dest); err != nil {
			return errors.Wrapf(err, "copy dump from %s", svc.Name)
		}
		return nil
	default:
		return errors.Wrapf(ErrUnsupportedKind, "dump %q", ref.Kind)
	}
}

// Load feeds the host file src back into the service.
func (d *Dispatcher) Load(ctx context.Context, svc registry.ServiceDescriptor, src string) error {
	if svc.Load == nil {
		return errors.Errorf("%s has no load capability", svc.Name)
	}
	ref := *svc.Load
	switch ref.Kind {
	case registry.KindExecStdin, registry.KindOfflineStdin:
		f, err := os.Open(src)
		if err != nil {
			return errors.Wrap(err, "open dump file")
		}
		defer func() { _ = f.Close() }()
		run := d.sub.Exec
		if ref.Kind == registry.KindOfflineStdin {
			run = d.offline
		}
		if err := run(ctx, svc.Name, f, io.Discard, d.expandAll(ref.Command)...); err != nil {
			return errors.Wrapf(err, "load %s", svc.Name)
		}
		return nil
	case registry.KindCopy:
		abs, err := filepath.Abs(src)
		if err != nil {
			return errors.Wrap(err, "resolve dump path")
		}
		if err := d.pre(ctx, svc.Name, ref); err != nil {
			return errors.Wrapf(err, "prepare load %s", svc.Name)
		}
		if err := d.sub.CopyTo(ctx, abs, svc.Name, ref.Path); err != nil {
			return errors.Wrapf(err, "copy dump into %s", svc.Name)
		}
		return nil
	default:
		return errors.Wrapf(ErrUnsupportedKind, "load %q", ref.Kind)
	}
}

// pre runs the ref's preparation command inside the running service.
func (d *Dispatcher) pre(ctx context.Context, service string, ref registry.CapabilityRef) error {
	if len(ref.Pre) == 0 {
		return nil
	}
	return d.sub.Exec(ctx, service, nil, io.Discard, d.expandAll(ref.Pre)...)
}

// offline stops service, runs argv in a one-off container and starts the
// service again, also when the command failed.
func (d *Dispatcher) offline(ctx context.Context, service string, stdin io.Reader, stdout io.Writer, argv ...string) error {
	if err := d.sub.Stop(ctx, service); err != nil {
		return errors.Wrapf(err, "stop %s", service)
	}
	runErr := d.sub.Run(ctx, service, stdin, stdout, argv...)
	upCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restartTimeout)
	defer cancel()
	if err := d.sub.Up(upCtx, service); err != nil {
		if runErr != nil {
			return errors.Wrapf(runErr, "start %s afterwards also failed: %v", service, err)
		}
		return errors.Wrapf(err, "start %s", service)
	}
	return runErr
}

// Exec runs an ad-hoc command in a service container, expanding ${VAR}
// references. input, when non-empty, is fed on stdin.
func (d *Dispatcher) Exec(ctx context.Context, service string, argv []string, input io.Reader) error {
	return d.sub.Exec(ctx, service, input, io.Discard, d.expandAll(argv)...)
}

func (d *Dispatcher) expand(s string) string {
	return config.ExpandArgs([]string{s}, d.env)[0]
}

func (d *Dispatcher) expandAll(args []string) []string {
	return config.ExpandArgs(args, d.env)
}
