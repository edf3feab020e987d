// Package restore replays a backup archive into the stateful stores.
//
// The archive is extracted before anything touches the fleet, so a missing or
// corrupt archive has no side effects. Each store is restored independently:
// a failed load is recorded and the remaining stores are still attempted.
package restore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/go-go-golems/fleetctl/pkg/archive"
	"github.com/go-go-golems/fleetctl/pkg/backup"
	"github.com/go-go-golems/fleetctl/pkg/health"
	"github.com/go-go-golems/fleetctl/pkg/oplog"
	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
)

var (
	ErrRestoreTargetMissing    = errors.New("restore archive not found")
	ErrRestoreTargetUnreadable = errors.New("restore archive unreadable")
)

const fleetStartTimeout = 5 * time.Minute

type Controller interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
}

type Loader interface {
	Load(ctx context.Context, svc registry.ServiceDescriptor, src string) error
}

type Outcome string

const (
	OutcomeRestored Outcome = "restored"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

type StoreResult struct {
	Service string
	Outcome Outcome
	Error   string
}

type Report struct {
	Archive string
	Stores  []StoreResult
}

func (r *Report) Failed() []string {
	var out []string
	for _, s := range r.Stores {
		if s.Outcome == OutcomeFailed {
			out = append(out, s.Service)
		}
	}
	return out
}

type Engine struct {
	fleet   registry.Fleet
	ctrl    Controller
	loader  Loader
	warmup  time.Duration
	log     *oplog.Log
	tempDir string
	wait    func(context.Context, time.Duration) error
}

type Option func(*Engine)

// WithTempDir sets the parent directory for extraction (default os.TempDir).
func WithTempDir(dir string) Option { return func(e *Engine) { e.tempDir = dir } }

func WithWait(wait func(context.Context, time.Duration) error) Option {
	return func(e *Engine) { e.wait = wait }
}

func NewEngine(fleet registry.Fleet, ctrl Controller, loader Loader, warmup time.Duration, log *oplog.Log, opts ...Option) *Engine {
	if log == nil {
		log = oplog.Nop()
	}
	e := &Engine{fleet: fleet, ctrl: ctrl, loader: loader, warmup: warmup, log: log, wait: health.Wait}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Restore(ctx context.Context, archivePath string) (*Report, error) {
	fi, err := os.Stat(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrRestoreTargetMissing, "%s", archivePath)
		}
		return nil, errors.Wrapf(ErrRestoreTargetUnreadable, "%s: %v", archivePath, err)
	}
	if fi.IsDir() {
		return nil, errors.Wrapf(ErrRestoreTargetUnreadable, "%s is a directory", archivePath)
	}

	tmp, err := os.MkdirTemp(e.tempDir, "fleetctl-restore-")
	if err != nil {
		return nil, errors.Wrap(err, "create extraction dir")
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	if _, err := archive.Unpack(archivePath, tmp); err != nil {
		return nil, errors.Wrapf(ErrRestoreTargetUnreadable, "%s: %v", archivePath, err)
	}
	sums := readChecksums(tmp)
	e.log.Info().Str("archive", archivePath).Msg("archive extracted")

	report := &Report{Archive: archivePath}

	e.log.Info().Msg("stopping fleet")
	if err := e.ctrl.Stop(ctx, ""); err != nil {
		return report, errors.Wrap(err, "stop fleet before restore")
	}

	for _, svc := range e.fleet.RestoreOrder() {
		if err := ctx.Err(); err != nil {
			e.startAfterCancel(ctx)
			return report, err
		}
		report.Stores = append(report.Stores, e.restoreOne(ctx, svc, tmp, sums))
	}

	e.log.Info().Msg("starting fleet")
	if err := e.ctrl.Start(ctx, ""); err != nil {
		return report, errors.Wrap(err, "start fleet after restore")
	}

	if failed := report.Failed(); len(failed) > 0 {
		e.log.Warn().Strs("failed", failed).Msg("restore finished with failures")
	} else {
		e.log.Success().Str("archive", archivePath).Msg("restore complete")
	}
	return report, nil
}

// startAfterCancel brings the stopped fleet back once a restore was
// interrupted, on a context that outlives the caller's.
func (e *Engine) startAfterCancel(ctx context.Context) {
	startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fleetStartTimeout)
	defer cancel()
	e.log.Warn().Msg("restore interrupted, starting fleet")
	if err := e.ctrl.Start(startCtx, ""); err != nil {
		e.log.Error().Err(err).Msg("fleet start after interrupted restore failed")
	}
}

func (e *Engine) restoreOne(ctx context.Context, svc registry.ServiceDescriptor, dir string, sums map[string]string) StoreResult {
	res := StoreResult{Service: svc.Name}
	src := filepath.Join(dir, svc.DumpFile)
	if _, err := os.Stat(src); err != nil {
		res.Outcome = OutcomeSkipped
		e.log.Info().Str("service", svc.Name).Msg("no dump in archive, leaving store untouched")
		return res
	}
	fail := func(err error, msg string) StoreResult {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		e.log.Error().Str("service", svc.Name).Err(err).Msg(msg)
		return res
	}

	if want, ok := sums[svc.DumpFile]; ok {
		got, err := backup.FileSHA256(src)
		if err != nil {
			return fail(err, "hash dump")
		}
		if got != want {
			return fail(errors.Errorf("checksum mismatch for %s", svc.DumpFile), "dump corrupted")
		}
	}

	if err := e.ctrl.Start(ctx, svc.Name); err != nil {
		return fail(err, "start store")
	}
	if err := e.wait(ctx, e.warmup); err != nil {
		return fail(err, "warm-up interrupted")
	}
	e.log.Info().Str("service", svc.Name).Msg("loading dump")
	if err := e.loader.Load(ctx, svc, src); err != nil {
		return fail(err, "load failed")
	}
	if svc.NeedsRestartAfterLoad() {
		if err := e.ctrl.Restart(ctx, svc.Name); err != nil {
			return fail(err, "restart after load")
		}
	}
	res.Outcome = OutcomeRestored
	e.log.Success().Str("service", svc.Name).Msg("restored")
	return res
}

// readChecksums returns dump file checksums from the manifest, if any. File
// presence stays authoritative; a missing manifest means no verification.
func readChecksums(dir string) map[string]string {
	out := map[string]string{}
	b, err := os.ReadFile(filepath.Join(dir, backup.ManifestName))
	if err != nil {
		return out
	}
	var m backup.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return out
	}
	for _, entry := range m.Entries {
		if entry.Succeeded && entry.SHA256 != "" {
			out[entry.DumpFile] = entry.SHA256
		}
	}
	return out
}
