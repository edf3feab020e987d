package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/subosito/gotenv"
)

// DefaultEnv holds the built-in credentials and connection parameters used
// when neither the process environment nor the env file sets them.
func DefaultEnv() map[string]string {
	return map[string]string{
		"NEO4J_USER":        "neo4j",
		"NEO4J_PASSWORD":    "password",
		"POSTGRES_USER":     "postgres",
		"POSTGRES_PASSWORD": "postgres",
		"POSTGRES_DB":       "market",
		"REDIS_PASSWORD":    "",
	}
}

// ResolveEnv layers defaults, the env file and the process environment (in
// increasing precedence) and returns a copy of cfg carrying the result.
// found reports whether the env file existed; a missing file is not an error.
func ResolveEnv(cfg Config, environ []string) (resolved Config, found bool, err error) {
	env := DefaultEnv()

	fileEnv, found, err := readEnvFile(cfg.EnvFile)
	if err != nil {
		return Config{}, false, err
	}
	for k, v := range fileEnv {
		env[k] = v
	}

	// Only keys the fleet knows about are taken from the process env.
	process := parseEnviron(environ)
	for k := range env {
		if v, ok := process[k]; ok {
			env[k] = v
		}
	}

	cfg.Env = env
	return cfg, found, nil
}

func readEnvFile(path string) (map[string]string, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "open env file")
	}
	defer func() { _ = f.Close() }()

	env, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, true, errors.Wrapf(err, "parse env file %s", path)
	}
	return env, true, nil
}

func parseEnviron(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Environ renders the resolved env as KEY=VALUE pairs appended to base.
func (c Config) Environ(base []string) []string {
	out := append([]string{}, base...)
	for k, v := range c.Env {
		out = append(out, k+"="+v)
	}
	return out
}

// Expand replaces ${VAR} references in args using the resolved env.
func (c Config) Expand(args []string) []string {
	return ExpandArgs(args, c.Env)
}

func ExpandArgs(args []string, env map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = os.Expand(a, func(k string) string { return env[k] })
	}
	return out
}
