package runner

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/nodeops/nodeops/pkg/config"
)

// testSSHServer is a minimal SSH server answering a fixed set of commands.
type testSSHServer struct {
	listener net.Listener
	config   *ssh.ServerConfig
	addr     string
	done     chan struct{}
}

func newTestSSHServer(t *testing.T) *testSSHServer {
	t.Helper()

	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(privKey)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "testuser" && string(pass) == "testpass" {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
	}
	config.AddHostKey(signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &testSSHServer{
		listener: listener,
		config:   config,
		addr:     listener.Addr().String(),
		done:     make(chan struct{}),
	}
	go server.serve()
	t.Cleanup(server.close)

	return server
}

func (s *testSSHServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				continue
			}
		}
		go s.handleConnection(conn)
	}
}

func (s *testSSHServer) handleConnection(netConn net.Conn) {
	defer netConn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, s.config)
	if err != nil {
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handleChannel(channel, requests)
	}
}

func exitStatus(code uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, code)
	return b
}

func (s *testSSHServer) handleChannel(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			command := string(req.Payload[4:])
			if req.WantReply {
				_ = req.Reply(true, nil)
			}

			switch command {
			case "ansible 10.0.0.5 -m ping":
				_, _ = channel.Write([]byte("10.0.0.5 | SUCCESS => {\"ping\": \"pong\"}\n"))
				_, _ = channel.SendRequest("exit-status", false, exitStatus(0))
			case "check -C 4":
				_, _ = channel.Stderr().Write([]byte("insufficient cpu\n"))
				_, _ = channel.SendRequest("exit-status", false, exitStatus(4))
			case "hang":
				// Never answers; the client has to time out.
				for r := range requests {
					if r.Type == "signal" && r.WantReply {
						_ = r.Reply(true, nil)
					}
				}
			default:
				_, _ = channel.Write([]byte("command: " + command + "\n"))
				_, _ = channel.SendRequest("exit-status", false, exitStatus(0))
			}
			return

		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (s *testSSHServer) close() {
	close(s.done)
	_ = s.listener.Close()
}

func testSSHConfig(t *testing.T, addr string) config.SSHConfig {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return config.SSHConfig{
		Host:       host,
		Port:       port,
		User:       "testuser",
		AuthMethod: config.SSHAuthPassword,
		Password:   "testpass",
	}
}

func newTestSSHRunner(t *testing.T, server *testSSHServer) *SSHRunner {
	t.Helper()

	r, err := NewSSHRunner(testSSHConfig(t, server.addr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSSHRunnerRun(t *testing.T) {
	tests := map[string]struct {
		command     string
		expExitCode int
		expOutput   string
	}{
		"A successful command should report output and exit code zero.": {
			command:     "ansible 10.0.0.5 -m ping",
			expExitCode: 0,
			expOutput:   `10.0.0.5 | SUCCESS => {"ping": "pong"}`,
		},
		"A non-zero exit status should be reported as data.": {
			command:     "check -C 4",
			expExitCode: 4,
			expOutput:   "insufficient cpu",
		},
	}

	server := newTestSSHServer(t)
	r := newTestSSHRunner(t, server)

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := r.Run(context.Background(), Request{Command: tc.command, Timeout: 5 * time.Second})
			require.NoError(t, err)
			assert.Equal(t, tc.expExitCode, res.ExitCode)
			assert.Equal(t, tc.expOutput, res.Output)
		})
	}
}

func TestSSHRunnerTimeout(t *testing.T) {
	server := newTestSSHServer(t)
	r := newTestSSHRunner(t, server)

	start := time.Now()
	res, err := r.Run(context.Background(), Request{Command: "hang", Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, ExitCodeTimeout, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSSHRunnerCancelledIsNotTimeout(t *testing.T) {
	server := newTestSSHServer(t)
	r := newTestSSHRunner(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	res, err := r.Run(ctx, Request{Command: "hang", Timeout: 10 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.TimedOut)
	assert.Equal(t, ExitCodeUnknown, res.ExitCode)
}

func TestSSHRunnerConnectFailure(t *testing.T) {
	cfg := testSSHConfig(t, "127.0.0.1:1")
	cfg.ConnectionTimeout = time.Second

	r, err := NewSSHRunner(cfg)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), Request{Command: "true", Timeout: 2 * time.Second})
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "connect", terr.Op)
	assert.Equal(t, ExitCodeUnknown, res.ExitCode)
}

func writePrivateKey(t *testing.T, passphrase string) string {
	t.Helper()

	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase != "" {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(key, "", []byte(passphrase))
	} else {
		block, err = ssh.MarshalPrivateKey(key, "")
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestNewSSHRunnerCredentials(t *testing.T) {
	tests := map[string]struct {
		cfg    func(t *testing.T) config.SSHConfig
		expErr bool
	}{
		"Password auth with a password should be accepted.": {
			cfg: func(t *testing.T) config.SSHConfig {
				return config.SSHConfig{Host: "control.example", User: "deploy", AuthMethod: config.SSHAuthPassword, Password: "secret"}
			},
		},
		"Key auth with a readable key should be accepted.": {
			cfg: func(t *testing.T) config.SSHConfig {
				return config.SSHConfig{Host: "control.example", User: "deploy", AuthMethod: config.SSHAuthKey, PrivateKeyPath: writePrivateKey(t, "")}
			},
		},
		"Key auth with an encrypted key and its passphrase should be accepted.": {
			cfg: func(t *testing.T) config.SSHConfig {
				return config.SSHConfig{
					Host:                 "control.example",
					User:                 "deploy",
					AuthMethod:           config.SSHAuthKey,
					PrivateKeyPath:       writePrivateKey(t, "hunter2"),
					PrivateKeyPassphrase: "hunter2",
				}
			},
		},
		"Key auth with an encrypted key and no passphrase should fail.": {
			cfg: func(t *testing.T) config.SSHConfig {
				return config.SSHConfig{Host: "control.example", User: "deploy", AuthMethod: config.SSHAuthKey, PrivateKeyPath: writePrivateKey(t, "hunter2")}
			},
			expErr: true,
		},
		"Missing host should fail.": {
			cfg: func(t *testing.T) config.SSHConfig {
				return config.SSHConfig{User: "deploy", AuthMethod: config.SSHAuthPassword, Password: "secret"}
			},
			expErr: true,
		},
		"Password auth without a password should fail.": {
			cfg: func(t *testing.T) config.SSHConfig {
				return config.SSHConfig{Host: "control.example", User: "deploy", AuthMethod: config.SSHAuthPassword}
			},
			expErr: true,
		},
		"Key auth with a missing key file should fail.": {
			cfg: func(t *testing.T) config.SSHConfig {
				return config.SSHConfig{Host: "control.example", User: "deploy", PrivateKeyPath: "/nonexistent/id_ed25519"}
			},
			expErr: true,
		},
		"Strict host key checking with a missing known_hosts should fail.": {
			cfg: func(t *testing.T) config.SSHConfig {
				return config.SSHConfig{
					Host:                  "control.example",
					User:                  "deploy",
					AuthMethod:            config.SSHAuthPassword,
					Password:              "secret",
					StrictHostKeyChecking: true,
					KnownHostsPath:        "/nonexistent/known_hosts",
				}
			},
			expErr: true,
		},
		"Unknown auth method should fail.": {
			cfg: func(t *testing.T) config.SSHConfig {
				return config.SSHConfig{Host: "control.example", User: "deploy", AuthMethod: "agent"}
			},
			expErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewSSHRunner(tc.cfg(t))
			if tc.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
