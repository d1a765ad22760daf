// Package classify turns captured command results into typed outcomes.
//
// Each orchestration operation owns a Policy. Classify evaluates it in a
// fixed order: the not-found marker first, then process success together
// with the operation's expected output line, then the exit-code table, then the
// policy's fallback. The marker has to come first because an absent target
// and a real failure can share an exit code.
package classify

import (
	"fmt"
	"strings"

	"github.com/nodeops/nodeops/pkg/runner"
)

// NotFoundMarker is the text the existence-check scripts print for an absent target.
const NotFoundMarker = "not found"

// Status is the tag of an Outcome.
type Status int

const (
	StatusSuccess Status = iota
	StatusNotFound
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNotFound:
		return "not_found"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of classifying one command.
type Outcome struct {
	Status Status

	// Kind and Detail are set for StatusFailure only.
	Kind   Kind
	Detail string

	// ExitCode is kept for building the caller-facing Failure.
	ExitCode int
	TimedOut bool
}

// Policy describes how one operation interprets its command result.
type Policy struct {
	// Kind is the failure kind used when no exit code entry matches.
	Kind Kind

	// NotFoundMarker, when set, yields StatusNotFound if present in the
	// output, regardless of the exit code.
	NotFoundMarker string

	// ExpectLinePrefix, when set, must start a line of the output of a
	// successful process; otherwise the result is a failure of Kind.
	ExpectLinePrefix string

	// ExitCodes maps specific exit codes of a failed process to kinds.
	ExitCodes map[int]Kind

	// TolerateUnknownFailure turns a failed process that matched neither the
	// marker nor an exit code entry into StatusSuccess.
	TolerateUnknownFailure bool
}

// Classify applies p to res. The timeout sentinel never matches the exit
// code table and is never tolerated.
func Classify(res runner.Result, p Policy) Outcome {
	out := Outcome{ExitCode: res.ExitCode, TimedOut: res.TimedOut}

	if p.NotFoundMarker != "" && !res.TimedOut && strings.Contains(res.Output, p.NotFoundMarker) {
		out.Status = StatusNotFound
		return out
	}

	if res.Succeeded() {
		if p.ExpectLinePrefix != "" && !hasLinePrefix(res.Output, p.ExpectLinePrefix) {
			return failure(out, p.Kind, res.Output)
		}
		out.Status = StatusSuccess
		return out
	}

	if res.TimedOut {
		return failure(out, p.Kind, res.Output)
	}

	if kind, ok := p.ExitCodes[res.ExitCode]; ok {
		return failure(out, kind, res.Output)
	}

	if p.TolerateUnknownFailure {
		out.Status = StatusSuccess
		return out
	}

	return failure(out, p.Kind, res.Output)
}

func hasLinePrefix(output, prefix string) bool {
	for line := range strings.Lines(output) {
		if strings.HasPrefix(strings.TrimLeft(line, " \t"), prefix) {
			return true
		}
	}
	return false
}

func failure(out Outcome, kind Kind, detail string) Outcome {
	out.Status = StatusFailure
	out.Kind = kind
	out.Detail = detail
	return out
}

// Err converts a failure outcome into a *Failure; other outcomes return nil.
func (o Outcome) Err() *Failure {
	if o.Status != StatusFailure {
		return nil
	}
	f := &Failure{Kind: o.Kind, ExitCode: o.ExitCode, Output: o.Detail}
	if o.TimedOut {
		f.Err = ErrTimedOut
	}
	return f
}
