package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func names(services []ServiceDescriptor) []string {
	out := make([]string, 0, len(services))
	for _, s := range services {
		out = append(out, s.Name)
	}
	return out
}

func TestFleet_DefaultOrderings(t *testing.T) {
	f, err := New(DefaultServices())
	require.NoError(t, err)

	require.Equal(t, []string{"neo4j", "postgres", "redis", "api", "scraper", "dashboard"}, names(f.All()))
	require.Equal(t, []string{"dashboard", "scraper", "api", "redis", "postgres", "neo4j"}, names(f.StopOrder()))
	require.Equal(t, []string{"neo4j", "postgres", "redis"}, names(f.Stateful()))
	require.Equal(t, []string{"neo4j", "postgres", "redis"}, names(f.RestoreOrder()))
}

func TestFleet_RestoreOrderIgnoresStartOrder(t *testing.T) {
	store := func(name string, order int, kind StoreKind) ServiceDescriptor {
		return ServiceDescriptor{
			Name:        name,
			Role:        RoleStatefulStore,
			StartOrder:  order,
			Store:       kind,
			HealthCheck: CapabilityRef{Kind: KindRunning},
			Dump:        &CapabilityRef{Kind: KindCopy, Path: "/x"},
			Load:        &CapabilityRef{Kind: KindCopy, Path: "/x"},
			DumpFile:    name + ".bin",
		}
	}
	f, err := New([]ServiceDescriptor{
		store("cache", 1, StoreCache),
		store("sql", 2, StoreRelational),
		store("extra", 0, ""),
		store("graph", 3, StoreGraph),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"extra", "cache", "sql", "graph"}, names(f.All()))
	require.Equal(t, []string{"graph", "sql", "cache", "extra"}, names(f.RestoreOrder()))
}

func TestFleet_Validation(t *testing.T) {
	_, err := New([]ServiceDescriptor{{Name: "a", Role: "bogus", HealthCheck: CapabilityRef{Kind: KindRunning}}})
	require.Error(t, err)

	_, err = New([]ServiceDescriptor{{Name: "db", Role: RoleStatefulStore, HealthCheck: CapabilityRef{Kind: KindRunning}}})
	require.Error(t, err)

	worker := ServiceDescriptor{Name: "w", Role: RoleStatelessWorker, HealthCheck: CapabilityRef{Kind: KindRunning}}
	_, err = New([]ServiceDescriptor{worker, worker})
	require.ErrorContains(t, err, "duplicate")

	worker.Dump = &CapabilityRef{Kind: KindCopy}
	_, err = New([]ServiceDescriptor{worker})
	require.Error(t, err)
}

func TestFleet_LookupAndRestartAfterLoad(t *testing.T) {
	f := MustNew(DefaultServices())

	redis, ok := f.Lookup("redis")
	require.True(t, ok)
	require.True(t, redis.NeedsRestartAfterLoad())

	pg, ok := f.Lookup("postgres")
	require.True(t, ok)
	require.False(t, pg.NeedsRestartAfterLoad())

	_, ok = f.Lookup("nope")
	require.False(t, ok)
}
