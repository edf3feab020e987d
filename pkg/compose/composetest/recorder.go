// Package composetest provides a scripted Runner for exercising code that
// shells out to docker without a daemon.
package composetest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/go-go-golems/fleetctl/pkg/compose"
)

// Handler answers one command. Returning a nil Result is fine.
type Handler func(cmd compose.Command) (compose.Result, error)

type rule struct {
	match   string
	handler Handler
}

// Recorder records every command and answers from rules matched by
// substring against the joined argv. Unmatched commands succeed silently.
type Recorder struct {
	mu    sync.Mutex
	calls []compose.Command
	rules []rule
}

var _ compose.Runner = (*Recorder)(nil)

func NewRecorder() *Recorder { return &Recorder{} }

// On registers a handler for commands whose argv contains match. Later
// registrations take precedence.
func (r *Recorder) On(match string, h Handler) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule{match: match, handler: h})
	return r
}

// Fail makes commands containing match exit non-zero.
func (r *Recorder) Fail(match string) *Recorder {
	return r.On(match, func(cmd compose.Command) (compose.Result, error) {
		return compose.Result{}, &compose.ExitError{Command: cmd.String(), ExitCode: 1, Stderr: "scripted failure"}
	})
}

// Output makes commands containing match print out.
func (r *Recorder) Output(match, out string) *Recorder {
	return r.On(match, func(compose.Command) (compose.Result, error) {
		return compose.Result{Stdout: []byte(out)}, nil
	})
}

func (r *Recorder) Run(ctx context.Context, cmd compose.Command) (compose.Result, error) {
	if err := ctx.Err(); err != nil {
		return compose.Result{}, err
	}
	if cmd.Stdin != nil {
		b, _ := io.ReadAll(cmd.Stdin)
		cmd.Stdin = strings.NewReader(string(b))
	}

	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	var h Handler
	joined := cmd.String()
	for i := len(r.rules) - 1; i >= 0; i-- {
		if strings.Contains(joined, r.rules[i].match) {
			h = r.rules[i].handler
			break
		}
	}
	r.mu.Unlock()

	if h == nil {
		return compose.Result{}, nil
	}
	res, err := h(cmd)
	if cmd.Stdout != nil && len(res.Stdout) > 0 {
		if _, werr := cmd.Stdout.Write(res.Stdout); werr != nil {
			return res, werr
		}
		res.Stdout = nil
	}
	return res, err
}

// Calls returns every recorded command as a joined string.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c.String())
	}
	return out
}

// Commands returns the recorded commands.
func (r *Recorder) Commands() []compose.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]compose.Command{}, r.calls...)
}

// Matching returns the recorded commands containing substr, in order.
func (r *Recorder) Matching(substr string) []string {
	var out []string
	for _, c := range r.Calls() {
		if strings.Contains(c, substr) {
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
