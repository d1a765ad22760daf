package runner

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// ExitCodeTimeout is reported when the command was terminated because its
	// timeout budget elapsed. Matches the convention of coreutils timeout(1).
	ExitCodeTimeout = 124

	// ExitCodeUnknown is reported when no exit status could be observed:
	// the process never started, the transport broke, or it died from a signal.
	ExitCodeUnknown = -1
)

// errBudgetElapsed is the cancellation cause of a request whose own timeout
// expired, as opposed to a caller cancelling ctx.
var errBudgetElapsed = errors.New("command timeout budget elapsed")

// withBudget bounds ctx by timeout. Zero means no bound beyond ctx.
func withBudget(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, timeout, errBudgetElapsed)
}

// budgetElapsed reports whether ctx ended because the request budget ran out.
func budgetElapsed(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), errBudgetElapsed)
}

// Request describes a single command invocation. It is built per call and
// never reused.
type Request struct {
	// ID correlates log lines, metrics and spans of one invocation.
	ID string

	// Host is the target the command line addresses. The runner itself does
	// not interpret it; it is carried for logging.
	Host string

	// Command is the full shell command line to run on the control machine.
	Command string

	// Timeout bounds the execution. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// Result is the captured outcome of a command. A non-zero ExitCode is valid
// data, not an error.
type Result struct {
	// ExitCode is the process exit status, ExitCodeTimeout or ExitCodeUnknown.
	ExitCode int

	// Stdout and Stderr are the separately captured streams.
	Stdout string
	Stderr string

	// Output is stdout and stderr interleaved in arrival order.
	Output string

	// TimedOut is set when the process was killed after its budget elapsed.
	TimedOut bool

	StartedAt time.Time
	Duration  time.Duration
}

// Succeeded reports process-level success.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0 && !r.TimedOut
}

// Runner executes command lines on the control machine.
//
// Run returns an error only when the command could not be executed at all
// (spawn failure, broken transport) or when the caller cancelled ctx before
// the command finished. In that case the returned Result still carries
// ExitCodeUnknown and any partial output. Only the expiry of Request.Timeout
// is reported as TimedOut. Implementations must be
// safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, req Request) (Result, error)

// Run calls f(ctx, req).
func (f RunnerFunc) Run(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// lockedBuffer serialises writes from the stdout and stderr copiers into the
// combined output.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
