package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// LocalConfig configures a LocalRunner.
type LocalConfig struct {
	// Shell is the interpreter used as `<Shell> -c <command>` (default: /bin/bash).
	Shell string

	// KillGrace is how long the process group gets between SIGTERM and
	// SIGKILL once the timeout elapsed (default: 100ms).
	KillGrace time.Duration

	// Env is appended to the inherited environment.
	Env []string
}

// LocalRunner runs commands through a local shell.
type LocalRunner struct {
	shell     string
	killGrace time.Duration
	env       []string
}

// NewLocalRunner creates a LocalRunner, applying defaults to cfg.
func NewLocalRunner(cfg LocalConfig) *LocalRunner {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/bash"
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 100 * time.Millisecond
	}
	return &LocalRunner{
		shell:     cfg.Shell,
		killGrace: cfg.KillGrace,
		env:       cfg.Env,
	}
}

// Run executes req.Command and waits for it to exit or for its timeout.
// Whatever is left of the process group when the shell exits is killed, so
// commands that background children never outlive the call.
func (r *LocalRunner) Run(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := withBudget(ctx, req.Timeout)
	defer cancel()

	log.Debug().
		Str("op_id", req.ID).
		Str("host", req.Host).
		Str("command", req.Command).
		Dur("timeout", req.Timeout).
		Msg("executing command")

	var stdoutBuf, stderrBuf bytes.Buffer
	combined := &lockedBuffer{}

	cmd := exec.Command(r.shell, "-c", req.Command)
	cmd.Stdout = io.MultiWriter(&stdoutBuf, combined)
	cmd.Stderr = io.MultiWriter(&stderrBuf, combined)
	// Bounds how long Wait keeps reading pipes held open by background
	// children after the shell exited.
	cmd.WaitDelay = time.Second
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}
	setProcessGroup(cmd)

	result := Result{StartedAt: time.Now()}

	if err := cmd.Start(); err != nil {
		result.ExitCode = ExitCodeUnknown
		result.Duration = time.Since(result.StartedAt)
		return result, fmt.Errorf("failed to start command: %w", err)
	}

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- cmd.Wait()
	}()

	var waitErr error
	interrupted := false
	select {
	case <-ctx.Done():
		interrupted = true
		_ = signalProcessGroup(cmd, sigterm)
		select {
		case waitErr = <-doneChan:
		case <-time.After(r.killGrace):
			_ = signalProcessGroup(cmd, sigkill)
			waitErr = <-doneChan
		}
	case waitErr = <-doneChan:
	}
	_ = signalProcessGroup(cmd, sigkill)

	result.Duration = time.Since(result.StartedAt)
	result.Stdout = strings.TrimSpace(stdoutBuf.String())
	result.Stderr = strings.TrimSpace(stderrBuf.String())
	result.Output = strings.TrimSpace(combined.String())

	var exitErr *exec.ExitError
	switch {
	case interrupted && !budgetElapsed(ctx):
		result.ExitCode = ExitCodeUnknown
		return result, fmt.Errorf("command cancelled: %w", context.Cause(ctx))
	case interrupted:
		result.TimedOut = true
		result.ExitCode = ExitCodeTimeout
	case waitErr == nil:
		result.ExitCode = 0
	case errors.As(waitErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
		// The shell exited; a background child kept a pipe open.
		result.ExitCode = cmd.ProcessState.ExitCode()
	default:
		result.ExitCode = ExitCodeUnknown
		return result, fmt.Errorf("failed to wait for command: %w", waitErr)
	}

	log.Debug().
		Str("op_id", req.ID).
		Int("exit_code", result.ExitCode).
		Bool("timed_out", result.TimedOut).
		Int("output_len", len(result.Output)).
		Dur("duration", result.Duration).
		Msg("command completed")

	return result, nil
}
