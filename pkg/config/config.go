package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nodeops/nodeops/pkg/telemetry"
)

// TimeoutClass is the budget category an operation runs under.
type TimeoutClass string

const (
	// ClassShort covers reachability checks, generic commands and transfers.
	ClassShort TimeoutClass = "short"

	// ClassMedium covers scripted host and docker capability checks.
	ClassMedium TimeoutClass = "medium"

	// ClassLong covers image/container existence checks and image pulls.
	ClassLong TimeoutClass = "long"
)

// RunnerMode selects how command lines reach the remote-execution tool.
type RunnerMode string

const (
	// RunnerLocal runs the tool on this machine.
	RunnerLocal RunnerMode = "local"

	// RunnerSSH runs the tool on a control machine over SSH.
	RunnerSSH RunnerMode = "ssh"
)

// Config is the engine configuration. It is passed by value into the engine
// at construction and never mutated afterwards.
type Config struct {
	// Tool is the remote-execution tool invoked for every remote command.
	Tool ToolConfig `yaml:"tool"`

	// Scripts are the control-machine paths of the scripts shipped to hosts.
	Scripts ScriptPaths `yaml:"scripts"`

	// Timeouts holds the budget of each timeout class.
	Timeouts Timeouts `yaml:"timeouts"`

	// StrictExistenceChecks reports unexplained existence-check failures as
	// errors instead of assuming the image or container is present.
	StrictExistenceChecks bool `yaml:"strictExistenceChecks"`

	// Runner selects and configures the command runner.
	Runner RunnerConfig `yaml:"runner"`

	// Registry configures the host registry database.
	Registry RegistryConfig `yaml:"registry"`

	// Fanout bounds parallelism when an operation targets the whole inventory.
	Fanout int `yaml:"fanout" validate:"gte=1,lte=256"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ToolConfig configures the remote-execution tool.
type ToolConfig struct {
	// Binary is the executable name or path (default: ansible).
	Binary string `yaml:"binary" validate:"required"`
}

// ScriptPaths locates the provisioning scripts on the control machine.
type ScriptPaths struct {
	HostCheck      string `yaml:"hostCheck" validate:"required"`
	DockerCheck    string `yaml:"dockerCheck" validate:"required"`
	HostInit       string `yaml:"hostInit" validate:"required"`
	ImageCheck     string `yaml:"imageCheck" validate:"required"`
	ContainerCheck string `yaml:"containerCheck" validate:"required"`
	ImagePullCDN   string `yaml:"imagePullCdn" validate:"required"`
}

// Timeouts holds the budget of each timeout class. YAML values are Go
// duration strings such as "90s".
type Timeouts struct {
	Short  time.Duration `yaml:"short" validate:"gt=0"`
	Medium time.Duration `yaml:"medium" validate:"gt=0"`
	Long   time.Duration `yaml:"long" validate:"gt=0"`
}

// For returns the budget of class. Unknown classes get the short budget.
func (t Timeouts) For(class TimeoutClass) time.Duration {
	switch class {
	case ClassMedium:
		return t.Medium
	case ClassLong:
		return t.Long
	default:
		return t.Short
	}
}

// RunnerConfig selects the command runner.
type RunnerConfig struct {
	Mode RunnerMode `yaml:"mode" validate:"oneof=local ssh"`

	// Shell is the local interpreter (local mode).
	Shell string `yaml:"shell"`

	// SSH configures the control machine (ssh mode).
	SSH SSHConfig `yaml:"ssh"`
}

// SSHAuth selects how the runner authenticates to the control machine.
type SSHAuth string

const (
	// SSHAuthKey uses a private key, discovered under ~/.ssh when not set.
	SSHAuthKey SSHAuth = "key"

	// SSHAuthPassword uses password and keyboard-interactive authentication.
	SSHAuthPassword SSHAuth = "password"
)

// SSHConfig is the control machine connection used in ssh mode. Zero
// values fall back to the defaults of runner.NewSSHRunner.
type SSHConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"omitempty,gte=1,lte=65535"`
	User string `yaml:"user"`

	AuthMethod           SSHAuth `yaml:"auth" validate:"omitempty,oneof=password key"`
	Password             string  `yaml:"password" validate:"required_if=AuthMethod password"`
	PrivateKeyPath       string  `yaml:"privateKey"`
	PrivateKeyPassphrase string  `yaml:"privateKeyPassphrase"`

	// KnownHostsPath is only read with StrictHostKeyChecking
	// (default: ~/.ssh/known_hosts).
	KnownHostsPath        string `yaml:"knownHosts"`
	StrictHostKeyChecking bool   `yaml:"strictHostKeyChecking"`

	ConnectionTimeout time.Duration `yaml:"connectionTimeout" validate:"gte=0"`

	// KillGrace is the delay between SIGTERM and SIGKILL for a command
	// whose budget elapsed.
	KillGrace time.Duration `yaml:"killGrace" validate:"gte=0"`
}

// RegistryConfig configures the host registry.
type RegistryConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path" validate:"required"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Tool: ToolConfig{Binary: "ansible"},
		Scripts: ScriptPaths{
			HostCheck:      "./scripts/host_check.sh",
			DockerCheck:    "./scripts/docker_check.sh",
			HostInit:       "./scripts/host_init.sh",
			ImageCheck:     "./scripts/image_check.sh",
			ContainerCheck: "./scripts/container_check.sh",
			ImagePullCDN:   "./scripts/docker_pull_cdn.sh",
		},
		Timeouts: Timeouts{
			Short:  time.Minute,
			Medium: 5 * time.Minute,
			Long:   10 * time.Minute,
		},
		Runner: RunnerConfig{
			Mode:  RunnerLocal,
			Shell: "/bin/bash",
			SSH: SSHConfig{
				Port:                  22,
				AuthMethod:            SSHAuthKey,
				StrictHostKeyChecking: true,
				ConnectionTimeout:     30 * time.Second,
				KillGrace:             100 * time.Millisecond,
			},
		},
		Registry: RegistryConfig{Path: "nodeops.db"},
		Fanout:   16,

		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads a YAML file on top of DefaultConfig and validates the result.
// An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid field %s: failed %q constraint", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}

	if c.Runner.Mode == RunnerSSH {
		if c.Runner.SSH.Host == "" {
			return fmt.Errorf("runner.ssh.host is required in ssh mode")
		}
		if c.Runner.SSH.User == "" {
			return fmt.Errorf("runner.ssh.user is required in ssh mode")
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}

	return nil
}
