package classify

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the domain classification of a failed operation.
type Kind string

const (
	// KindUnreachable means the reachability check did not find the host in the tool output.
	KindUnreachable Kind = "unreachable"

	// KindCommandFailed is a generic remote command failure.
	KindCommandFailed Kind = "command_failed"

	// KindTransferFailed covers copy/fetch failures, including a rejected directory fetch.
	KindTransferFailed Kind = "transfer_failed"

	// KindInsufficientMemory is exit code 3 of the host check script.
	KindInsufficientMemory Kind = "insufficient_memory"

	// KindInsufficientCPU is exit code 4 of the host check script.
	KindInsufficientCPU Kind = "insufficient_cpu"

	// KindBadParameters is any other host check script failure.
	KindBadParameters Kind = "bad_parameters"

	// KindDockerPrerequisiteFailed is any docker check script failure.
	KindDockerPrerequisiteFailed Kind = "docker_prerequisite_failed"

	// KindImageCheckParamError is exit code 2 of the image check script.
	KindImageCheckParamError Kind = "image_check_param_error"

	// KindContainerCheckParamError is exit code 2 of the container check script.
	KindContainerCheckParamError Kind = "container_check_param_error"

	// KindPullFailed means the image pull script failed.
	KindPullFailed Kind = "pull_failed"

	// KindBootstrapFailed means either step of the bootstrap sequence failed.
	KindBootstrapFailed Kind = "bootstrap_failed"

	// KindToolNotInstalled means the remote-execution tool is missing on the control machine.
	KindToolNotInstalled Kind = "tool_not_installed"
)

var (
	// ErrInvalidHost is wrapped by failures raised before rendering a command
	// for a blank or malformed host identifier.
	ErrInvalidHost = errors.New("invalid host identifier")

	// ErrFetchDirectory is wrapped by the failure of a directory fetch.
	ErrFetchDirectory = errors.New("fetching a directory is not supported")

	// ErrTimedOut is wrapped by failures whose command exceeded its budget.
	ErrTimedOut = errors.New("command timed out")
)

// Failure is the error returned by every orchestration operation that did
// not succeed. It keeps the raw tool output so operators can reproduce the
// remote command manually.
type Failure struct {
	// Kind is the domain classification.
	Kind Kind `json:"kind"`

	// Host is the target host identifier.
	Host string `json:"host,omitempty"`

	// Operation names the engine operation (e.g. "check_host").
	Operation string `json:"operation,omitempty"`

	// Class is the timeout class the command ran with.
	Class string `json:"class,omitempty"`

	// Command is the rendered command line, if one was issued.
	Command string `json:"command,omitempty"`

	// ExitCode is the observed exit status, if a command ran.
	ExitCode int `json:"exit_code"`

	// Output is the raw combined output of the command.
	Output string `json:"output,omitempty"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", f.Kind)
	if f.Operation != "" {
		fmt.Fprintf(&b, " %s", f.Operation)
	}
	if f.Host != "" {
		fmt.Fprintf(&b, " (host=%s)", f.Host)
	}
	if f.Command != "" {
		fmt.Fprintf(&b, " exit=%d", f.ExitCode)
	}
	if f.Err != nil {
		fmt.Fprintf(&b, ": %s", f.Err)
	}
	if f.Output != "" {
		fmt.Fprintf(&b, ": %s", f.Output)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches another *Failure by Kind, so errors.Is(err, &Failure{Kind: k})
// works as a kind check.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	return f.Kind == t.Kind
}

// NewFailure creates a failure of the given kind.
func NewFailure(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// WithHost adds host context to a failure.
func (f *Failure) WithHost(host string) *Failure {
	f.Host = host
	return f
}

// WithOperation adds operation context to a failure.
func (f *Failure) WithOperation(op string) *Failure {
	f.Operation = op
	return f
}

// WithClass adds the timeout class to a failure.
func (f *Failure) WithClass(class string) *Failure {
	f.Class = class
	return f
}

// WithCommand adds the rendered command line to a failure.
func (f *Failure) WithCommand(cmd string) *Failure {
	f.Command = cmd
	return f
}

// KindOf returns the kind of the first *Failure in err's chain.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// IsKind returns true if err carries a *Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
