package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(LoadOptions{ProjectDir: dir})
	require.NoError(t, err)

	require.Equal(t, DefaultProject, cfg.Project)
	require.Equal(t, filepath.Join(dir, DefaultComposeFilename), cfg.ComposeFile)
	require.Equal(t, filepath.Join(dir, DefaultBackupDir), cfg.BackupDir)
	require.Equal(t, filepath.Join(dir, ".env"), cfg.EnvFile)
	require.Equal(t, 30*time.Second, cfg.Timings.StoreWarmup)
	require.Equal(t, 60, cfg.Timings.HealthAttempts)
	require.Equal(t, 10*time.Second, cfg.Timings.HealthInterval)
	require.Equal(t, 120*time.Second, cfg.Timings.Settle)
	require.Equal(t, 6, cfg.Fleet.Len())
	require.NotEmpty(t, cfg.Schema)
	require.Equal(t, "redis", cfg.Trigger.Service)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	body := []byte(`project: shop
compose_file: deploy/compose.yml
timings:
  store_warmup: 1s
  health_attempts: 3
  health_interval: 50ms
services:
  - name: cache
    role: stateful-store
    start_order: 1
    store: cache
    health: {kind: running}
    dump: {kind: copy, path: /data/dump.rdb, pre: [redis-cli, SAVE]}
    load: {kind: copy, path: /data/dump.rdb}
    dump_file: cache.rdb
  - name: web
    role: gateway
    start_order: 2
    health: {kind: http, url: "http://localhost:8080/health"}
trigger:
  service: cache
schema: []
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFilename), body, 0o644))

	cfg, err := Load(LoadOptions{ProjectDir: dir})
	require.NoError(t, err)
	require.Equal(t, "shop", cfg.Project)
	require.Equal(t, filepath.Join(dir, "deploy", "compose.yml"), cfg.ComposeFile)
	require.Equal(t, time.Second, cfg.Timings.StoreWarmup)
	require.Equal(t, 3, cfg.Timings.HealthAttempts)
	require.Equal(t, 50*time.Millisecond, cfg.Timings.HealthInterval)
	require.Equal(t, 120*time.Second, cfg.Timings.Settle)
	require.Equal(t, []string{"cache", "web"}, cfg.Fleet.Names())
	require.Empty(t, cfg.Schema)
}

func TestLoad_RejectsUnknownTriggerService(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFilename), []byte("trigger:\n  service: kafka\n"), 0o644))

	_, err := Load(LoadOptions{ProjectDir: dir})
	require.ErrorContains(t, err, "kafka")
}

func TestResolveEnv_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(LoadOptions{ProjectDir: dir})
	require.NoError(t, err)

	resolved, found, err := ResolveEnv(cfg, nil)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, "neo4j", resolved.Env["NEO4J_USER"])
	require.Nil(t, cfg.Env, "input config must not be mutated")

	require.NoError(t, os.WriteFile(cfg.EnvFile, []byte("NEO4J_USER=graph\nPOSTGRES_DB=shop\nEXTRA=1\n"), 0o600))
	resolved, found, err = ResolveEnv(cfg, []string{"POSTGRES_DB=override", "UNRELATED=x"})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "graph", resolved.Env["NEO4J_USER"])
	require.Equal(t, "override", resolved.Env["POSTGRES_DB"])
	require.Equal(t, "1", resolved.Env["EXTRA"])
	_, ok := resolved.Env["UNRELATED"]
	require.False(t, ok)
}

func TestExpandArgs(t *testing.T) {
	got := ExpandArgs([]string{"psql", "-U", "${POSTGRES_USER}", "$MISSING"}, map[string]string{"POSTGRES_USER": "pg"})
	require.Equal(t, []string{"psql", "-U", "pg", ""}, got)
}
