package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nodeops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		content  string
		expErr   bool
		validate func(t *testing.T, cfg *Config)
	}{
		"Empty file should return defaults.": {
			content: "",
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultConfig(), cfg)
			},
		},
		"Partial file should override only the given fields.": {
			content: `
tool:
  binary: /usr/local/bin/ansible
scripts:
  hostCheck: /opt/scripts/host_check.sh
timeouts:
  long: 20m
strictExistenceChecks: true
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/usr/local/bin/ansible", cfg.Tool.Binary)
				assert.Equal(t, "/opt/scripts/host_check.sh", cfg.Scripts.HostCheck)
				assert.Equal(t, "./scripts/docker_check.sh", cfg.Scripts.DockerCheck)
				assert.Equal(t, 20*time.Minute, cfg.Timeouts.Long)
				assert.Equal(t, time.Minute, cfg.Timeouts.Short)
				assert.True(t, cfg.StrictExistenceChecks)
			},
		},
		"SSH runner with host and user should load.": {
			content: `
runner:
  mode: ssh
  ssh:
    host: bastion.internal
    user: deploy
    privateKey: /home/deploy/.ssh/id_ed25519
`,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, RunnerSSH, cfg.Runner.Mode)
				assert.Equal(t, "bastion.internal", cfg.Runner.SSH.Host)
				assert.Equal(t, 22, cfg.Runner.SSH.Port)
				assert.Equal(t, SSHAuthKey, cfg.Runner.SSH.AuthMethod)
			},
		},
		"SSH password auth without a password should fail.": {
			content: "runner:\n  mode: ssh\n  ssh:\n    host: bastion.internal\n    user: deploy\n    auth: password\n",
			expErr:  true,
		},
		"Unknown SSH auth method should fail.": {
			content: "runner:\n  ssh:\n    auth: agent\n",
			expErr:  true,
		},
		"SSH runner without host should fail.": {
			content: "runner:\n  mode: ssh\n  ssh:\n    user: deploy\n",
			expErr:  true,
		},
		"Unknown runner mode should fail.": {
			content: "runner:\n  mode: telnet\n",
			expErr:  true,
		},
		"Zero timeout should fail.": {
			content: "timeouts:\n  medium: 0s\n",
			expErr:  true,
		},
		"Empty tool binary should fail.": {
			content: "tool:\n  binary: \"\"\n",
			expErr:  true,
		},
		"Invalid telemetry should fail.": {
			content: "telemetry:\n  logging:\n    level: loud\n",
			expErr:  true,
		},
		"Malformed YAML should fail.": {
			content: "tool: [unclosed",
			expErr:  true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tc.content))
			if tc.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.validate(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ansible", cfg.Tool.Binary)
}

func TestTimeoutsFor(t *testing.T) {
	timeouts := DefaultConfig().Timeouts

	assert.Equal(t, time.Minute, timeouts.For(ClassShort))
	assert.Equal(t, 5*time.Minute, timeouts.For(ClassMedium))
	assert.Equal(t, 10*time.Minute, timeouts.For(ClassLong))
	assert.Equal(t, time.Minute, timeouts.For("unknown"))
}
