package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-go-golems/fleetctl/pkg/registry"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFilename  = "fleet.yaml"
	DefaultEnvFilename     = ".env"
	DefaultComposeFilename = "docker-compose.yml"
	DefaultProject         = "market-agents"
	DefaultBackupDir       = "backups"
)

// File is the on-disk shape of fleet.yaml. Every field is optional.
type File struct {
	Project     string                       `yaml:"project,omitempty"`
	ComposeFile string                       `yaml:"compose_file,omitempty"`
	BackupDir   string                       `yaml:"backup_dir,omitempty"`
	Directories []string                     `yaml:"directories,omitempty"`
	Timings     Timings                      `yaml:"timings,omitempty"`
	Trigger     Trigger                      `yaml:"trigger,omitempty"`
	Schema      []Statement                  `yaml:"schema,omitempty"`
	Services    []registry.ServiceDescriptor `yaml:"services,omitempty"`
}

type Timings struct {
	StoreWarmup    time.Duration `yaml:"store_warmup,omitempty"`
	HealthAttempts int           `yaml:"health_attempts,omitempty"`
	HealthInterval time.Duration `yaml:"health_interval,omitempty"`
	Settle         time.Duration `yaml:"settle,omitempty"`
	RestoreWarmup  time.Duration `yaml:"restore_warmup,omitempty"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout,omitempty"`
	StopTimeout    time.Duration `yaml:"stop_timeout,omitempty"`
}

// Trigger describes the one-shot message that starts the first worker cycle.
type Trigger struct {
	Service string   `yaml:"service,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
	Payload string   `yaml:"payload,omitempty"`
	Command []string `yaml:"command,omitempty"`
}

// Statement is an idempotent schema operation run inside a store container.
type Statement struct {
	Name    string   `yaml:"name"`
	Service string   `yaml:"service"`
	Command []string `yaml:"command"`
	Input   string   `yaml:"input,omitempty"`
}

// Config is the resolved, immutable configuration threaded into every
// component. Copy it, never mutate a shared instance.
type Config struct {
	ProjectDir  string
	Project     string
	ComposeFile string
	BackupDir   string
	StateDir    string
	EnvFile     string
	Directories []string
	Timings     Timings
	Trigger     Trigger
	Schema      []Statement
	Fleet       registry.Fleet
	Env         map[string]string
}

type LoadOptions struct {
	ProjectDir string
	ConfigPath string
	EnvFile    string
}

func DefaultPath(projectDir string) string {
	return filepath.Join(projectDir, DefaultConfigFilename)
}

func LoadFromFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var cfg File
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	return &cfg, nil
}

func LoadOptional(path string) (*File, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, errors.Wrap(err, "stat config")
	}
	return LoadFromFile(path)
}

// Load reads fleet.yaml (if present) and applies defaults. The environment is
// not resolved here; see ResolveEnv.
func Load(opts LoadOptions) (Config, error) {
	if opts.ProjectDir == "" {
		return Config{}, errors.New("missing ProjectDir")
	}
	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		cfgPath = DefaultPath(opts.ProjectDir)
	}
	f, err := LoadOptional(cfgPath)
	if err != nil {
		return Config{}, err
	}
	return FromFile(opts, f)
}

func FromFile(opts LoadOptions, f *File) (Config, error) {
	if f == nil {
		f = &File{}
	}
	services := f.Services
	if len(services) == 0 {
		services = registry.DefaultServices()
	}
	fleet, err := registry.New(services)
	if err != nil {
		return Config{}, errors.Wrap(err, "fleet")
	}
	for _, st := range f.Schema {
		if _, ok := fleet.Lookup(st.Service); !ok {
			return Config{}, errors.Errorf("schema statement %q targets unknown service %q", st.Name, st.Service)
		}
	}

	cfg := Config{
		ProjectDir:  opts.ProjectDir,
		Project:     orDefault(f.Project, DefaultProject),
		ComposeFile: resolvePath(opts.ProjectDir, orDefault(f.ComposeFile, DefaultComposeFilename)),
		BackupDir:   resolvePath(opts.ProjectDir, orDefault(f.BackupDir, DefaultBackupDir)),
		StateDir:    filepath.Join(opts.ProjectDir, ".fleetctl"),
		EnvFile:     resolvePath(opts.ProjectDir, orDefault(opts.EnvFile, DefaultEnvFilename)),
		Directories: f.Directories,
		Timings:     f.Timings.withDefaults(),
		Trigger:     f.Trigger.withDefaults(),
		Schema:      f.Schema,
		Fleet:       fleet,
	}
	if len(cfg.Directories) == 0 {
		cfg.Directories = DefaultDirectories()
	}
	// The built-in statements only make sense for the built-in fleet.
	if cfg.Schema == nil && len(f.Services) == 0 {
		cfg.Schema = DefaultSchema()
	}
	if _, ok := fleet.Lookup(cfg.Trigger.Service); !ok {
		return Config{}, errors.Errorf("trigger targets unknown service %q", cfg.Trigger.Service)
	}
	return cfg, nil
}

// DefaultDirectories are created (relative to the project dir) during init.
func DefaultDirectories() []string {
	return []string{"logs", "data/neo4j", "data/postgres", "data/redis", "config", DefaultBackupDir}
}

func DefaultSchema() []Statement {
	cypher := func(name, stmt string) Statement {
		return Statement{
			Name:    name,
			Service: "neo4j",
			Command: []string{"cypher-shell", "-u", "${NEO4J_USER}", "-p", "${NEO4J_PASSWORD}", stmt},
		}
	}
	return []Statement{
		cypher("product-id-unique", "CREATE CONSTRAINT product_id IF NOT EXISTS FOR (p:Product) REQUIRE p.id IS UNIQUE"),
		cypher("website-domain-unique", "CREATE CONSTRAINT website_domain IF NOT EXISTS FOR (w:Website) REQUIRE w.domain IS UNIQUE"),
		{
			Name:    "postgres-extensions",
			Service: "postgres",
			Command: []string{"psql", "-q", "-U", "${POSTGRES_USER}", "-d", "${POSTGRES_DB}", "-c", "CREATE EXTENSION IF NOT EXISTS pg_trgm"},
		},
	}
}

func (t Timings) withDefaults() Timings {
	if t.StoreWarmup <= 0 {
		t.StoreWarmup = 30 * time.Second
	}
	if t.HealthAttempts <= 0 {
		t.HealthAttempts = 60
	}
	if t.HealthInterval <= 0 {
		t.HealthInterval = 10 * time.Second
	}
	if t.Settle <= 0 {
		t.Settle = 120 * time.Second
	}
	if t.RestoreWarmup <= 0 {
		t.RestoreWarmup = 10 * time.Second
	}
	if t.ProbeTimeout <= 0 {
		t.ProbeTimeout = 5 * time.Second
	}
	if t.StopTimeout <= 0 {
		t.StopTimeout = 30 * time.Second
	}
	return t
}

func (t Trigger) withDefaults() Trigger {
	if t.Service == "" {
		t.Service = "redis"
	}
	if t.Topic == "" {
		t.Topic = "scraper:trigger"
	}
	if t.Payload == "" {
		t.Payload = `{"action":"start_cycle"}`
	}
	if len(t.Command) == 0 {
		t.Command = []string{"redis-cli", "PUBLISH"}
	}
	return t
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
