// Package backup dumps every stateful store into a staging directory and
// packs it, with a manifest, into one timestamped archive.
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-go-golems/fleetctl/pkg/archive"
	"github.com/go-go-golems/fleetctl/pkg/oplog"
	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
)

const (
	ManifestName    = "manifest.json"
	archivePrefix   = "backup_"
	archiveSuffix   = ".tar.gz"
	timestampFormat = "20060102_150405"
)

// Dumper is the slice of the capability dispatcher backups need.
type Dumper interface {
	Running(ctx context.Context, service string) (bool, error)
	Dump(ctx context.Context, svc registry.ServiceDescriptor, dest string) error
}

type ManifestEntry struct {
	Service   string `json:"service"`
	DumpFile  string `json:"dump_file"`
	Succeeded bool   `json:"succeeded"`
	SHA256    string `json:"sha256,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Manifest struct {
	CreatedAt time.Time       `json:"created_at"`
	Entries   []ManifestEntry `json:"entries"`
}

// Archive describes a written backup. It is never modified afterwards.
type Archive struct {
	CreatedAt time.Time
	Path      string
	Manifest  []ManifestEntry
}

func (a *Archive) Succeeded() int {
	n := 0
	for _, e := range a.Manifest {
		if e.Succeeded {
			n++
		}
	}
	return n
}

type Engine struct {
	fleet  registry.Fleet
	dumper Dumper
	dir    string
	log    *oplog.Log
	now    func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(fleet registry.Fleet, dumper Dumper, dir string, log *oplog.Log, opts ...Option) *Engine {
	if log == nil {
		log = oplog.Nop()
	}
	e := &Engine{fleet: fleet, dumper: dumper, dir: dir, log: log, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Create dumps each stateful store in registry order. Store failures are
// recorded in the manifest; only filesystem errors fail the call.
func (e *Engine) Create(ctx context.Context) (*Archive, error) {
	createdAt := e.now()
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir backup dir")
	}
	base := e.uniqueBase(createdAt)
	staging := filepath.Join(e.dir, base)
	if err := os.MkdirAll(staging, 0o700); err != nil {
		return nil, errors.Wrap(err, "create staging dir")
	}
	defer func() { _ = os.RemoveAll(staging) }()

	manifest := Manifest{CreatedAt: createdAt.UTC()}
	for _, svc := range e.fleet.Stateful() {
		manifest.Entries = append(manifest.Entries, e.dumpOne(ctx, svc, staging))
	}

	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode manifest")
	}
	if err := os.WriteFile(filepath.Join(staging, ManifestName), append(b, '\n'), 0o644); err != nil {
		return nil, errors.Wrap(err, "write manifest")
	}

	path := filepath.Join(e.dir, base+archiveSuffix)
	if err := archive.Pack(staging, path); err != nil {
		return nil, errors.Wrap(err, "pack backup")
	}

	a := &Archive{CreatedAt: createdAt, Path: path, Manifest: manifest.Entries}
	ev := e.log.Success()
	if a.Succeeded() < len(a.Manifest) {
		ev = e.log.Warn()
	}
	ev.Str("archive", path).
		Int("stores", len(a.Manifest)).
		Int("succeeded", a.Succeeded()).
		Msg("backup written")
	return a, nil
}

func (e *Engine) dumpOne(ctx context.Context, svc registry.ServiceDescriptor, staging string) ManifestEntry {
	entry := ManifestEntry{Service: svc.Name, DumpFile: svc.DumpFile}

	running, err := e.dumper.Running(ctx, svc.Name)
	if err != nil {
		entry.Error = err.Error()
		e.log.Warn().Str("service", svc.Name).Err(err).Msg("could not determine run state, skipping")
		return entry
	}
	if !running {
		entry.Error = "not running"
		e.log.Warn().Str("service", svc.Name).Msg("not running, skipping")
		return entry
	}

	e.log.Info().Str("service", svc.Name).Msg("dumping")
	dest := filepath.Join(staging, svc.DumpFile)
	if err := e.dumper.Dump(ctx, svc, dest); err != nil {
		_ = os.Remove(dest)
		entry.Error = err.Error()
		e.log.Warn().Str("service", svc.Name).Err(err).Msg("dump failed")
		return entry
	}
	sum, err := FileSHA256(dest)
	if err != nil {
		entry.Error = err.Error()
		e.log.Warn().Str("service", svc.Name).Err(err).Msg("dump unreadable")
		_ = os.Remove(dest)
		return entry
	}
	entry.Succeeded = true
	entry.SHA256 = sum
	e.log.Success().Str("service", svc.Name).Str("file", svc.DumpFile).Msg("dumped")
	return entry
}

// uniqueBase picks backup_<ts>, suffixed when an archive with that second's
// timestamp already exists.
func (e *Engine) uniqueBase(t time.Time) string {
	base := archivePrefix + t.Format(timestampFormat)
	candidate := base
	for i := 1; ; i++ {
		_, errA := os.Stat(filepath.Join(e.dir, candidate+archiveSuffix))
		_, errS := os.Stat(filepath.Join(e.dir, candidate))
		if os.IsNotExist(errA) && os.IsNotExist(errS) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
}

type Info struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// List returns the archives in dir, newest first.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read backup dir")
	}
	var out []Info
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, archivePrefix) || !strings.HasSuffix(name, archiveSuffix) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Name: name, Path: filepath.Join(dir, name), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

// Prune deletes all but the newest keep archives and returns the removed paths.
func Prune(dir string, keep int) ([]string, error) {
	if keep < 0 {
		return nil, errors.Errorf("invalid keep %d", keep)
	}
	all, err := List(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for i := keep; i < len(all); i++ {
		if err := os.Remove(all[i].Path); err != nil {
			return removed, errors.Wrapf(err, "remove %s", all[i].Name)
		}
		removed = append(removed, all[i].Path)
	}
	return removed, nil
}

// FileSHA256 returns the hex sha256 of a file.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open dump")
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrap(err, "hash dump")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
