// Package compose drives the service-management substrate: the docker CLI
// and its compose plugin.
package compose

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type Options struct {
	Project     string
	ComposeFile string
	Dir         string
	Env         []string
	Binary      string // defaults to "docker"
	StopTimeout time.Duration
}

type Compose struct {
	runner Runner
	opts   Options
}

func New(runner Runner, opts Options) *Compose {
	if runner == nil {
		runner = ExecRunner{}
	}
	if opts.Binary == "" {
		opts.Binary = "docker"
	}
	return &Compose{runner: runner, opts: opts}
}

// Container is one row of `docker compose ps`.
type Container struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Health  string `json:"Health"`
	Status  string `json:"Status"`
}

func (c Container) Running() bool { return c.State == "running" }

// Stats is one row of `docker stats --no-stream`.
type Stats struct {
	Name     string `json:"Name"`
	CPUPerc  string `json:"CPUPerc"`
	MemUsage string `json:"MemUsage"`
	MemPerc  string `json:"MemPerc"`
}

type LogsOptions struct {
	Services []string
	Follow   bool
	Tail     int
	Since    string
}

type DownOptions struct {
	Volumes       bool
	RemoveOrphans bool
}

func (c *Compose) docker(ctx context.Context, cmd Command) (Result, error) {
	cmd.Name = c.opts.Binary
	cmd.Dir = c.opts.Dir
	cmd.Env = c.opts.Env
	return c.runner.Run(ctx, cmd)
}

func (c *Compose) compose(ctx context.Context, cmd Command) (Result, error) {
	base := []string{"compose"}
	if c.opts.Project != "" {
		base = append(base, "-p", c.opts.Project)
	}
	if c.opts.ComposeFile != "" {
		base = append(base, "-f", c.opts.ComposeFile)
	}
	cmd.Args = append(base, cmd.Args...)
	return c.docker(ctx, cmd)
}

// Ping verifies the docker daemon is reachable and running.
func (c *Compose) Ping(ctx context.Context) error {
	res, err := c.docker(ctx, Command{Args: []string{"info", "--format", "{{.ServerVersion}}"}})
	if err != nil {
		return errors.Wrap(err, "docker daemon not reachable")
	}
	if strings.TrimSpace(string(res.Stdout)) == "" {
		return errors.New("docker daemon returned no server version")
	}
	return nil
}

func (c *Compose) Up(ctx context.Context, services ...string) error {
	args := append([]string{"up", "-d", "--no-deps"}, services...)
	_, err := c.compose(ctx, Command{Args: args})
	return err
}

func (c *Compose) Stop(ctx context.Context, services ...string) error {
	args := []string{"stop"}
	if c.opts.StopTimeout > 0 {
		args = append(args, "-t", strconv.Itoa(stopSeconds(c.opts.StopTimeout)))
	}
	_, err := c.compose(ctx, Command{Args: append(args, services...)})
	return err
}

// stopSeconds rounds up so a positive timeout never becomes an immediate kill.
func stopSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

func (c *Compose) Restart(ctx context.Context, services ...string) error {
	_, err := c.compose(ctx, Command{Args: append([]string{"restart"}, services...)})
	return err
}

func (c *Compose) Pull(ctx context.Context) error {
	_, err := c.compose(ctx, Command{Args: []string{"pull", "--ignore-buildable"}})
	return err
}

func (c *Compose) Build(ctx context.Context) error {
	_, err := c.compose(ctx, Command{Args: []string{"build"}})
	return err
}

func (c *Compose) Down(ctx context.Context, opts DownOptions) error {
	args := []string{"down"}
	if opts.Volumes {
		args = append(args, "--volumes")
	}
	if opts.RemoveOrphans {
		args = append(args, "--remove-orphans")
	}
	_, err := c.compose(ctx, Command{Args: args})
	return err
}

// Prune removes dangling images, unused volumes and networks.
func (c *Compose) Prune(ctx context.Context) error {
	for _, args := range [][]string{
		{"image", "prune", "-f"},
		{"volume", "prune", "-f"},
		{"network", "prune", "-f"},
	} {
		if _, err := c.docker(ctx, Command{Args: args}); err != nil {
			return errors.Wrapf(err, "docker %s", strings.Join(args[:2], " "))
		}
	}
	return nil
}

func (c *Compose) Ps(ctx context.Context) ([]Container, error) {
	res, err := c.compose(ctx, Command{Args: []string{"ps", "--all", "--format", "json"}})
	if err != nil {
		return nil, err
	}
	return parseContainers(res.Stdout)
}

// parseContainers accepts both the JSON array emitted by older compose
// releases and the one-object-per-line form of newer ones.
func parseContainers(b []byte) ([]Container, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, nil
	}
	if b[0] == '[' {
		var out []Container
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, errors.Wrap(err, "parse compose ps")
		}
		return out, nil
	}
	var out []Container
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ct Container
		if err := json.Unmarshal(line, &ct); err != nil {
			return nil, errors.Wrap(err, "parse compose ps line")
		}
		out = append(out, ct)
	}
	return out, sc.Err()
}

// Stats samples resource usage once for the named containers.
func (c *Compose) Stats(ctx context.Context, containers []string) (map[string]Stats, error) {
	out := map[string]Stats{}
	if len(containers) == 0 {
		return out, nil
	}
	args := append([]string{"stats", "--no-stream", "--format", "{{json .}}"}, containers...)
	res, err := c.docker(ctx, Command{Args: args})
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(bytes.NewReader(res.Stdout))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var st Stats
		if err := json.Unmarshal(line, &st); err != nil {
			return nil, errors.Wrap(err, "parse docker stats")
		}
		out[st.Name] = st
	}
	return out, sc.Err()
}

// Logs writes service logs to w. With Follow it blocks until ctx is done.
func (c *Compose) Logs(ctx context.Context, opts LogsOptions, w io.Writer) error {
	args := []string{"logs", "--no-color", "--timestamps"}
	if opts.Follow {
		args = append(args, "--follow")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	if opts.Since != "" {
		args = append(args, "--since", opts.Since)
	}
	args = append(args, opts.Services...)
	_, err := c.compose(ctx, Command{Args: args, Stdout: w})
	if err != nil && opts.Follow && ctx.Err() != nil {
		return nil
	}
	return err
}

// Exec runs argv inside the service container without a TTY.
func (c *Compose) Exec(ctx context.Context, service string, stdin io.Reader, stdout io.Writer, argv ...string) error {
	if len(argv) == 0 {
		return errors.Errorf("exec in %q: empty command", service)
	}
	args := append([]string{"exec", "-T", service}, argv...)
	_, err := c.compose(ctx, Command{Args: args, Stdin: stdin, Stdout: stdout})
	return err
}

// Run runs argv in a one-off container of service, removed afterwards. The
// container shares the service's volumes, so it works while the service is
// stopped.
func (c *Compose) Run(ctx context.Context, service string, stdin io.Reader, stdout io.Writer, argv ...string) error {
	if len(argv) == 0 {
		return errors.Errorf("run in %q: empty command", service)
	}
	args := append([]string{"run", "--rm", "--no-deps", "-T", service}, argv...)
	_, err := c.compose(ctx, Command{Args: args, Stdin: stdin, Stdout: stdout})
	return err
}

func (c *Compose) CopyFrom(ctx context.Context, service, containerPath, hostPath string) error {
	_, err := c.compose(ctx, Command{Args: []string{"cp", service + ":" + containerPath, hostPath}})
	return err
}

func (c *Compose) CopyTo(ctx context.Context, hostPath, service, containerPath string) error {
	_, err := c.compose(ctx, Command{Args: []string{"cp", hostPath, service + ":" + containerPath}})
	return err
}
