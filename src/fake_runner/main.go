// Package fake_runner implements a scripted remote.Runner for tests.
package fake_runner

import (
	"context"
	"strings"
	"sync"

	"affab/src/remote"
)

// Response is what a simulated remote command produces.
type Response struct {
	Output     string
	ExitStatus int
	// Err, if set, is returned as a transport failure.
	Err error
}

// Handler decides whether it answers cmd. Handlers are consulted in order;
// the first one returning true wins.
type Handler func(cmd *remote.Command) (Response, bool)

// PrefixHandler answers every command whose Line starts with prefix.
func PrefixHandler(prefix string, resp Response) Handler {
	return func(cmd *remote.Command) (Response, bool) {
		if !strings.HasPrefix(cmd.Line, prefix) {
			return Response{}, false
		}
		return resp, true
	}
}

// ExactHandler answers the command whose Line is exactly line.
func ExactHandler(line string, resp Response) Handler {
	return func(cmd *remote.Command) (Response, bool) {
		if cmd.Line != line {
			return Response{}, false
		}
		return resp, true
	}
}

// FakeRunner records every command it receives. Commands no handler
// answers exit with status 1 and no output, which is what grep, pgrep and
// test do when nothing matches.
type FakeRunner struct {
	mu       sync.Mutex
	handlers []Handler
	calls    []*remote.Command
	closed   bool
}

func New(handlers ...Handler) *FakeRunner {
	return &FakeRunner{handlers: handlers}
}

// Handle appends handlers.
func (f *FakeRunner) Handle(handlers ...Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handlers...)
}

func (f *FakeRunner) Run(ctx context.Context, cmd *remote.Command) (string, error) {
	f.mu.Lock()
	c := *cmd
	f.calls = append(f.calls, &c)
	handlers := f.handlers
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	resp := Response{ExitStatus: 1}
	for _, h := range handlers {
		if r, ok := h(cmd); ok {
			resp = r
			break
		}
	}

	if resp.Err != nil {
		return "", resp.Err
	}

	if resp.ExitStatus != 0 {
		return resp.Output, &remote.CommandError{Command: cmd, ExitStatus: resp.ExitStatus, Output: resp.Output}
	}

	return resp.Output, nil
}

func (f *FakeRunner) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *FakeRunner) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Calls returns copies of the commands received so far.
func (f *FakeRunner) Calls() []remote.Command {
	f.mu.Lock()
	defer f.mu.Unlock()

	calls := make([]remote.Command, len(f.calls))
	for i, c := range f.calls {
		calls[i] = *c
	}
	return calls
}

// Lines returns the Line of every command received so far.
func (f *FakeRunner) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines := make([]string, len(f.calls))
	for i, c := range f.calls {
		lines[i] = c.Line
	}
	return lines
}
