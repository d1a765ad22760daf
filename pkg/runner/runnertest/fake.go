// Package runnertest provides a scripted runner.Runner for tests.
package runnertest

import (
	"context"
	"strings"
	"sync"

	"github.com/nodeops/nodeops/pkg/runner"
)

// Response is what the Fake answers for a matching command.
type Response struct {
	Result runner.Result
	Err    error
}

type rule struct {
	contains string
	resp     Response
}

// Fake answers Run calls from a list of rules and records every request.
// The first rule whose substring is contained in the command line wins;
// unmatched commands succeed with empty output.
type Fake struct {
	mu       sync.Mutex
	rules    []rule
	requests []runner.Request
}

// New returns an empty Fake.
func New() *Fake {
	return &Fake{}
}

// On registers a response for commands containing substr.
func (f *Fake) On(substr string, resp Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{contains: substr, resp: resp})
	return f
}

// OnExit is a shorthand for a completed command with the given exit code
// and combined output.
func (f *Fake) OnExit(substr string, exitCode int, output string) *Fake {
	return f.On(substr, Response{Result: runner.Result{ExitCode: exitCode, Output: output, Stdout: output}})
}

// Run implements runner.Runner.
func (f *Fake) Run(_ context.Context, req runner.Request) (runner.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	for _, r := range f.rules {
		if strings.Contains(req.Command, r.contains) {
			return r.resp.Result, r.resp.Err
		}
	}
	return runner.Result{}, nil
}

// Requests returns a copy of the recorded requests in call order.
func (f *Fake) Requests() []runner.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runner.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Commands returns the recorded command lines in call order.
func (f *Fake) Commands() []string {
	reqs := f.Requests()
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Command)
	}
	return out
}
