package registry

// DefaultServices is the built-in fleet used when fleet.yaml does not list
// services. Service names match the compose file.
func DefaultServices() []ServiceDescriptor {
	return []ServiceDescriptor{
		{
			Name:       "neo4j",
			Role:       RoleStatefulStore,
			StartOrder: 10,
			Store:      StoreGraph,
			Address:    "http://localhost:7474",
			HealthCheck: CapabilityRef{
				Kind:    KindExec,
				Command: []string{"cypher-shell", "-u", "${NEO4J_USER}", "-p", "${NEO4J_PASSWORD}", "RETURN 1"},
			},
			Dump: &CapabilityRef{
				Kind:    KindOfflineStdout,
				Command: []string{"neo4j-admin", "database", "dump", "neo4j", "--to-stdout"},
			},
			Load: &CapabilityRef{
				Kind:    KindOfflineStdin,
				Command: []string{"neo4j-admin", "database", "load", "neo4j", "--from-stdin", "--overwrite-destination=true"},
			},
			DumpFile: "neo4j.dump",
		},
		{
			Name:       "postgres",
			Role:       RoleStatefulStore,
			StartOrder: 10,
			Store:      StoreRelational,
			Address:    "localhost:5432",
			HealthCheck: CapabilityRef{
				Kind:    KindExec,
				Command: []string{"pg_isready", "-U", "${POSTGRES_USER}", "-d", "${POSTGRES_DB}"},
			},
			Dump: &CapabilityRef{
				Kind:    KindExecStdout,
				Command: []string{"pg_dump", "-U", "${POSTGRES_USER}", "--clean", "--if-exists", "${POSTGRES_DB}"},
			},
			Load: &CapabilityRef{
				Kind:    KindExecStdin,
				Command: []string{"psql", "-q", "-U", "${POSTGRES_USER}", "-d", "${POSTGRES_DB}"},
			},
			DumpFile: "postgres.sql",
		},
		{
			Name:       "redis",
			Role:       RoleStatefulStore,
			StartOrder: 10,
			Store:      StoreCache,
			Address:    "localhost:6379",
			HealthCheck: CapabilityRef{
				Kind:    KindExec,
				Command: []string{"redis-cli", "ping"},
			},
			Dump: &CapabilityRef{
				Kind: KindCopy,
				Pre:  []string{"redis-cli", "SAVE"},
				Path: "/data/dump.rdb",
			},
			// Without save points the restart that follows the copy does not
			// overwrite the copied file on shutdown.
			Load: &CapabilityRef{
				Kind: KindCopy,
				Pre:  []string{"redis-cli", "CONFIG", "SET", "save", ""},
				Path: "/data/dump.rdb",
			},
			DumpFile: "redis.rdb",
		},
		{
			Name:       "api",
			Role:       RoleGateway,
			StartOrder: 20,
			Address:    "http://localhost:8000",
			HealthCheck: CapabilityRef{
				Kind: KindHTTP,
				URL:  "http://localhost:8000/health",
			},
		},
		{
			Name:        "scraper",
			Role:        RoleStatelessWorker,
			StartOrder:  30,
			HealthCheck: CapabilityRef{Kind: KindRunning},
		},
		{
			Name:       "dashboard",
			Role:       RoleGateway,
			StartOrder: 40,
			Optional:   true,
			Address:    "http://localhost:3000",
			HealthCheck: CapabilityRef{
				Kind:    KindTCP,
				Address: "localhost:3000",
			},
		},
	}
}
