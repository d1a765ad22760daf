package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/nodeops/nodeops/pkg/config"
)

// TransportError represents a failure of the SSH channel itself, as opposed
// to a command that ran and exited non-zero.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "session")
	Op string

	// Err is the underlying error
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SSHRunner runs command lines on a remote control machine. A single
// connection is shared; every Run opens its own session on it.
type SSHRunner struct {
	address   string
	client    *ssh.ClientConfig
	killGrace time.Duration

	connMu sync.Mutex
	conn   *ssh.Client
}

// NewSSHRunner reads the credentials and host keys named by cfg and returns
// a runner. The connection is established lazily on the first Run.
func NewSSHRunner(cfg config.SSHConfig) (*SSHRunner, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, fmt.Errorf("ssh host and user are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 100 * time.Millisecond
	}

	auth, err := sshAuth(cfg)
	if err != nil {
		return nil, err
	}
	hostKeys, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	return &SSHRunner{
		address: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		client: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            auth,
			HostKeyCallback: hostKeys,
			Timeout:         cfg.ConnectionTimeout,
		},
		killGrace: cfg.KillGrace,
	}, nil
}

func sshAuth(cfg config.SSHConfig) ([]ssh.AuthMethod, error) {
	switch cfg.AuthMethod {
	case config.SSHAuthPassword:
		if cfg.Password == "" {
			return nil, fmt.Errorf("password auth requires a password")
		}
		// Servers often offer only keyboard-interactive for passwords.
		answer := func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = cfg.Password
			}
			return answers, nil
		}
		return []ssh.AuthMethod{ssh.Password(cfg.Password), ssh.KeyboardInteractive(answer)}, nil

	case "", config.SSHAuthKey:
		keyPath := cfg.PrivateKeyPath
		if keyPath == "" {
			keyPath = defaultKeyPath()
		}
		if keyPath == "" {
			return nil, fmt.Errorf("no private key configured and none found in ~/.ssh")
		}
		pem, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}

		var signer ssh.Signer
		if cfg.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key %s: %w", keyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	default:
		return nil, fmt.Errorf("unsupported ssh auth method: %s", cfg.AuthMethod)
	}
}

// defaultKeyPath returns the first usual private key present in ~/.ssh.
func defaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		p := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func hostKeyCallback(cfg config.SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return cb, nil
}

// Run executes req.Command in a new session on the control machine.
//
// When the budget elapses the remote command gets SIGTERM, then SIGKILL. If
// neither is acknowledged within the kill grace the session is closed and
// the result is reported as timed out; whether the remote process ended is
// then up to the control machine's sshd, which is logged as a warning.
func (r *SSHRunner) Run(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := withBudget(ctx, req.Timeout)
	defer cancel()

	result := Result{StartedAt: time.Now(), ExitCode: ExitCodeUnknown}

	log.Debug().
		Str("op_id", req.ID).
		Str("host", req.Host).
		Str("control", r.address).
		Str("command", req.Command).
		Msg("executing command over ssh")

	client, err := r.dial(ctx)
	if err != nil {
		result.Duration = time.Since(result.StartedAt)
		return result, err
	}

	session, err := client.NewSession()
	if err != nil {
		// The shared connection is likely dead; drop it so the next Run redials.
		r.reset(client)
		result.Duration = time.Since(result.StartedAt)
		return result, &TransportError{Op: "session", Err: err}
	}
	defer session.Close()

	// A session that ignores the kill signals may still be writing when Run
	// returns.
	stdoutBuf, stderrBuf, combined := &lockedBuffer{}, &lockedBuffer{}, &lockedBuffer{}
	session.Stdout = io.MultiWriter(stdoutBuf, combined)
	session.Stderr = io.MultiWriter(stderrBuf, combined)

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(req.Command)
	}()

	var execErr error
	interrupted := false
	select {
	case <-ctx.Done():
		interrupted = true
		if !r.stop(session, doneChan) {
			log.Warn().
				Str("op_id", req.ID).
				Str("control", r.address).
				Msg("remote command did not acknowledge SIGKILL, closing session")
		}
	case execErr = <-doneChan:
	}

	result.Duration = time.Since(result.StartedAt)
	result.Stdout = strings.TrimSpace(stdoutBuf.String())
	result.Stderr = strings.TrimSpace(stderrBuf.String())
	result.Output = strings.TrimSpace(combined.String())

	var exitErr *ssh.ExitError
	switch {
	case interrupted && !budgetElapsed(ctx):
		return result, fmt.Errorf("command cancelled: %w", context.Cause(ctx))
	case interrupted:
		result.TimedOut = true
		result.ExitCode = ExitCodeTimeout
	case execErr == nil:
		result.ExitCode = 0
	case errors.As(execErr, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	default:
		return result, &TransportError{Op: "execute", Err: execErr}
	}
	return result, nil
}

// stop signals the remote command and reports whether it ended within the
// kill grace of either signal.
func (r *SSHRunner) stop(session *ssh.Session, done <-chan error) bool {
	for _, sig := range []ssh.Signal{ssh.SIGTERM, ssh.SIGKILL} {
		_ = session.Signal(sig)
		select {
		case <-done:
			return true
		case <-time.After(r.killGrace):
		}
	}
	return false
}

// Close tears down the shared connection.
func (r *SSHRunner) Close() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

func (r *SSHRunner) dial(ctx context.Context) (*ssh.Client, error) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn != nil {
		return r.conn, nil
	}

	type dialed struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialed, 1)
	go func() {
		client, err := ssh.Dial("tcp", r.address, r.client)
		ch <- dialed{client, err}
	}()

	select {
	case <-ctx.Done():
		// Close a connection that completes after we gave up on it.
		go func() {
			if d := <-ch; d.client != nil {
				_ = d.client.Close()
			}
		}()
		return nil, &TransportError{Op: "connect", Err: context.Cause(ctx)}
	case d := <-ch:
		if d.err != nil {
			return nil, &TransportError{Op: "connect", Err: d.err}
		}
		r.conn = d.client
		log.Info().Str("address", r.address).Msg("ssh connection to control machine established")
		return d.client, nil
	}
}

func (r *SSHRunner) reset(stale *ssh.Client) {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn == stale {
		_ = r.conn.Close()
		r.conn = nil
	}
}
