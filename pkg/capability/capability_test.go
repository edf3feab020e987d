package capability

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/fleetctl/pkg/compose"
	"github.com/go-go-golems/fleetctl/pkg/compose/composetest"
	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/stretchr/testify/require"
)

func newDispatcher(r *composetest.Recorder) *Dispatcher {
	c := compose.New(r, compose.Options{Project: "p"})
	return NewDispatcher(c, map[string]string{"POSTGRES_USER": "pg", "POSTGRES_DB": "market"})
}

func lookup(t *testing.T, name string) registry.ServiceDescriptor {
	t.Helper()
	f := registry.MustNew(registry.DefaultServices())
	svc, ok := f.Lookup(name)
	require.True(t, ok)
	return svc
}

func TestHealthy_ExecExpandsEnv(t *testing.T) {
	r := composetest.NewRecorder()
	require.NoError(t, newDispatcher(r).Healthy(context.Background(), lookup(t, "postgres")))
	require.Equal(t, []string{"docker compose -p p exec -T postgres pg_isready -U pg -d market"}, r.Calls())

	r = composetest.NewRecorder().Fail("pg_isready")
	require.Error(t, newDispatcher(r).Healthy(context.Background(), lookup(t, "postgres")))
}

func TestHealthy_Running(t *testing.T) {
	r := composetest.NewRecorder().Output("ps --all", `{"Service":"scraper","State":"running"}`)
	require.NoError(t, newDispatcher(r).Healthy(context.Background(), lookup(t, "scraper")))

	r = composetest.NewRecorder().Output("ps --all", `{"Service":"scraper","State":"exited"}`)
	require.ErrorIs(t, newDispatcher(r).Healthy(context.Background(), lookup(t, "scraper")), ErrNotRunning)
}

func TestHealthy_HTTPAndTCP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := newDispatcher(composetest.NewRecorder())
	ok := registry.ServiceDescriptor{Name: "api", HealthCheck: registry.CapabilityRef{Kind: registry.KindHTTP, URL: srv.URL + "/health"}}
	bad := registry.ServiceDescriptor{Name: "api", HealthCheck: registry.CapabilityRef{Kind: registry.KindHTTP, URL: srv.URL + "/down"}}
	require.NoError(t, d.Healthy(context.Background(), ok))
	require.Error(t, d.Healthy(context.Background(), bad))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	tcp := registry.ServiceDescriptor{Name: "dashboard", HealthCheck: registry.CapabilityRef{Kind: registry.KindTCP, Address: addr}}
	require.NoError(t, d.Healthy(context.Background(), tcp))
	require.NoError(t, ln.Close())
	require.Error(t, d.Healthy(context.Background(), tcp))
}

func TestDump_ExecStdoutWritesFile(t *testing.T) {
	r := composetest.NewRecorder().Output("pg_dump", "CREATE TABLE x();\n")
	dest := filepath.Join(t.TempDir(), "postgres.sql")

	require.NoError(t, newDispatcher(r).Dump(context.Background(), lookup(t, "postgres"), dest))
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "CREATE TABLE x();\n", string(b))
}

func TestDump_FailureRemovesPartialFile(t *testing.T) {
	r := composetest.NewRecorder().On("pg_dump", func(cmd compose.Command) (compose.Result, error) {
		_, _ = io.WriteString(cmd.Stdout, "partial")
		return compose.Result{}, &compose.ExitError{Command: cmd.String(), ExitCode: 1}
	})
	dest := filepath.Join(t.TempDir(), "postgres.sql")

	require.Error(t, newDispatcher(r).Dump(context.Background(), lookup(t, "postgres"), dest))
	_, err := os.Stat(dest)
	require.True(t, os.IsNotExist(err))
}

func TestDump_CopyRunsPreFirst(t *testing.T) {
	r := composetest.NewRecorder()
	dest := filepath.Join(t.TempDir(), "redis.rdb")
	require.NoError(t, newDispatcher(r).Dump(context.Background(), lookup(t, "redis"), dest))
	require.Equal(t, []string{
		"docker compose -p p exec -T redis redis-cli SAVE",
		"docker compose -p p cp redis:/data/dump.rdb " + dest,
	}, r.Calls())
}

func TestLoad_ExecStdinFeedsFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "postgres.sql")
	require.NoError(t, os.WriteFile(src, []byte("SELECT 1;"), 0o600))

	var got string
	r := composetest.NewRecorder().On("psql", func(cmd compose.Command) (compose.Result, error) {
		b, _ := io.ReadAll(cmd.Stdin)
		got = string(b)
		return compose.Result{}, nil
	})
	require.NoError(t, newDispatcher(r).Load(context.Background(), lookup(t, "postgres"), src))
	require.Equal(t, "SELECT 1;", got)
}

func TestUnsupportedKind(t *testing.T) {
	d := newDispatcher(composetest.NewRecorder())
	svc := registry.ServiceDescriptor{Name: "x", HealthCheck: registry.CapabilityRef{Kind: "smoke-signal"}}
	require.ErrorIs(t, d.Healthy(context.Background(), svc), ErrUnsupportedKind)
}

func TestLoad_CopyDisablesSavePointsFirst(t *testing.T) {
	src := filepath.Join(t.TempDir(), "redis.rdb")
	require.NoError(t, os.WriteFile(src, []byte("REDIS0011"), 0o600))

	r := composetest.NewRecorder()
	require.NoError(t, newDispatcher(r).Load(context.Background(), lookup(t, "redis"), src))
	require.Equal(t, []string{
		"docker compose -p p exec -T redis redis-cli CONFIG SET save",
		"docker compose -p p cp " + src + " redis:/data/dump.rdb",
	}, r.Calls())
	require.Equal(t, []string{"redis-cli", "CONFIG", "SET", "save", ""}, r.Commands()[0].Args[len(r.Commands()[0].Args)-5:])

	r = composetest.NewRecorder().Fail("CONFIG SET")
	require.Error(t, newDispatcher(r).Load(context.Background(), lookup(t, "redis"), src))
	require.Empty(t, r.Matching(" cp "))
}

func TestDump_OfflineStopsRunsAndRestarts(t *testing.T) {
	r := composetest.NewRecorder().Output("neo4j-admin", "DUMP")
	dest := filepath.Join(t.TempDir(), "neo4j.dump")

	require.NoError(t, newDispatcher(r).Dump(context.Background(), lookup(t, "neo4j"), dest))
	require.Equal(t, []string{
		"docker compose -p p stop neo4j",
		"docker compose -p p run --rm --no-deps -T neo4j neo4j-admin database dump neo4j --to-stdout",
		"docker compose -p p up -d --no-deps neo4j",
	}, r.Calls())
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "DUMP", string(b))
}

func TestLoad_OfflineRestartsServiceAfterFailure(t *testing.T) {
	src := filepath.Join(t.TempDir(), "neo4j.dump")
	require.NoError(t, os.WriteFile(src, []byte("DUMP"), 0o600))

	var fed string
	r := composetest.NewRecorder().On("neo4j-admin database load", func(cmd compose.Command) (compose.Result, error) {
		b, _ := io.ReadAll(cmd.Stdin)
		fed = string(b)
		return compose.Result{}, &compose.ExitError{Command: cmd.String(), ExitCode: 1}
	})
	err := newDispatcher(r).Load(context.Background(), lookup(t, "neo4j"), src)
	require.Error(t, err)
	require.Equal(t, "DUMP", fed)
	require.Equal(t, []string{"docker compose -p p up -d --no-deps neo4j"}, r.Matching(" up "))

	ctx, cancel := context.WithCancel(context.Background())
	r = composetest.NewRecorder().On("neo4j-admin database load", func(cmd compose.Command) (compose.Result, error) {
		cancel()
		return compose.Result{}, context.Canceled
	})
	require.Error(t, newDispatcher(r).Load(ctx, lookup(t, "neo4j"), src))
	require.Len(t, r.Matching(" up -d --no-deps neo4j"), 1)
}
