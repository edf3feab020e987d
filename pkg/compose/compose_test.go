package compose_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-go-golems/fleetctl/pkg/compose"
	"github.com/go-go-golems/fleetctl/pkg/compose/composetest"
	"github.com/stretchr/testify/require"
)

func newCompose(r *composetest.Recorder) *compose.Compose {
	return compose.New(r, compose.Options{Project: "p", ComposeFile: "/x/docker-compose.yml"})
}

func TestCompose_BuildsProjectScopedArgs(t *testing.T) {
	r := composetest.NewRecorder()
	c := newCompose(r)
	ctx := context.Background()

	require.NoError(t, c.Up(ctx, "neo4j"))
	require.NoError(t, c.Exec(ctx, "redis", nil, nil, "redis-cli", "ping"))
	require.NoError(t, c.CopyFrom(ctx, "redis", "/data/dump.rdb", "/tmp/redis.rdb"))
	require.NoError(t, c.Down(ctx, compose.DownOptions{Volumes: true, RemoveOrphans: true}))

	require.Equal(t, []string{
		"docker compose -p p -f /x/docker-compose.yml up -d --no-deps neo4j",
		"docker compose -p p -f /x/docker-compose.yml exec -T redis redis-cli ping",
		"docker compose -p p -f /x/docker-compose.yml cp redis:/data/dump.rdb /tmp/redis.rdb",
		"docker compose -p p -f /x/docker-compose.yml down --volumes --remove-orphans",
	}, r.Calls())
}

func TestCompose_PsParsesArrayAndLines(t *testing.T) {
	ctx := context.Background()

	r := composetest.NewRecorder().Output("ps --all", `[{"Name":"p-neo4j-1","Service":"neo4j","State":"running","Health":"healthy"}]`)
	got, err := newCompose(r).Ps(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Running())
	require.Equal(t, "neo4j", got[0].Service)

	r = composetest.NewRecorder().Output("ps --all",
		`{"Name":"p-neo4j-1","Service":"neo4j","State":"running"}`+"\n"+
			`{"Name":"p-redis-1","Service":"redis","State":"exited"}`+"\n")
	got, err = newCompose(r).Ps(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.False(t, got[1].Running())

	r = composetest.NewRecorder()
	got, err = newCompose(r).Ps(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCompose_PingFailsWithoutDaemon(t *testing.T) {
	r := composetest.NewRecorder().Fail("info")
	err := newCompose(r).Ping(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "docker daemon not reachable")
}

func TestCompose_LogsStreamsToWriter(t *testing.T) {
	r := composetest.NewRecorder().Output("logs", "api | ready\n")
	var buf bytes.Buffer
	err := newCompose(r).Logs(context.Background(), compose.LogsOptions{Services: []string{"api"}, Tail: 50, Since: "10m"}, &buf)
	require.NoError(t, err)
	require.Equal(t, "api | ready\n", buf.String())
	require.Equal(t, []string{
		"docker compose -p p -f /x/docker-compose.yml logs --no-color --timestamps --tail 50 --since 10m api",
	}, r.Calls())
}

func TestCompose_StatsKeyedByContainer(t *testing.T) {
	r := composetest.NewRecorder().Output("stats", `{"Name":"p-api-1","CPUPerc":"1.5%","MemUsage":"20MiB / 1GiB"}`+"\n")
	got, err := newCompose(r).Stats(context.Background(), []string{"p-api-1"})
	require.NoError(t, err)
	require.Equal(t, "1.5%", got["p-api-1"].CPUPerc)
}

func TestExitError_Message(t *testing.T) {
	e := &compose.ExitError{Command: "docker info", ExitCode: 2, Stderr: "no daemon\n"}
	require.Equal(t, "docker info: exit status 2: no daemon", e.Error())
}

func TestCompose_StopTimeoutRoundsUp(t *testing.T) {
	for _, tc := range []struct {
		timeout time.Duration
		want    string
	}{
		{500 * time.Millisecond, "stop -t 1 api"},
		{1500 * time.Millisecond, "stop -t 2 api"},
		{30 * time.Second, "stop -t 30 api"},
	} {
		r := composetest.NewRecorder()
		c := compose.New(r, compose.Options{Project: "p", StopTimeout: tc.timeout})
		require.NoError(t, c.Stop(context.Background(), "api"))
		require.Equal(t, []string{"docker compose -p p " + tc.want}, r.Calls(), tc.timeout.String())
	}
}

func TestCompose_RunUsesOneOffContainer(t *testing.T) {
	r := composetest.NewRecorder()
	require.NoError(t, newCompose(r).Run(context.Background(), "neo4j", nil, nil, "neo4j-admin", "database", "info"))
	require.Equal(t, []string{
		"docker compose -p p -f /x/docker-compose.yml run --rm --no-deps -T neo4j neo4j-admin database info",
	}, r.Calls())
	require.Error(t, newCompose(r).Run(context.Background(), "neo4j", nil, nil))
}
