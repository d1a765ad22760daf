package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nodeops/nodeops/pkg/classify"
	"github.com/nodeops/nodeops/pkg/config"
)

// CheckTool verifies the remote-execution tool is installed on the control
// machine.
func (e *Engine) CheckTool(ctx context.Context) error {
	c := e.begin(ctx, OpCheckTool, "", config.ClassShort)
	_, err := c.exec(config.ClassShort, e.toolCheckCommand(), classify.Policy{
		Kind: classify.KindToolNotInstalled,
	})
	return c.end(outcomeSuccess, err)
}

// CheckReachable pings host through the tool. The host counts as reachable
// only if the tool succeeds and a line of its output starts with
// "<host> |". The tool exits zero with empty output for hosts missing from
// its inventory.
func (e *Engine) CheckReachable(ctx context.Context, host string) error {
	c := e.begin(ctx, OpPing, host, config.ClassShort)
	if err := c.checkHost(classify.KindUnreachable); err != nil {
		return c.end(outcomeFailure, err)
	}

	_, err := c.exec(config.ClassShort, e.pingCommand(host), classify.Policy{
		Kind:             classify.KindUnreachable,
		ExpectLinePrefix: host + " |",
	})
	return c.end(outcomeSuccess, err)
}

// ExecCommand runs command on host. The failure carries the raw output.
func (e *Engine) ExecCommand(ctx context.Context, host, command string) error {
	c := e.begin(ctx, OpExec, host, config.ClassShort)
	if err := c.checkHost(classify.KindCommandFailed); err != nil {
		return c.end(outcomeFailure, err)
	}

	_, err := c.exec(config.ClassShort, e.shellCommand(host, command), classify.Policy{
		Kind: classify.KindCommandFailed,
	})
	return c.end(outcomeSuccess, err)
}

// CreateRemoteDirectory runs mkdir -p on host. It is idempotent.
func (e *Engine) CreateRemoteDirectory(ctx context.Context, host, path string) error {
	c := e.begin(ctx, OpMkdir, host, config.ClassShort)
	if err := c.checkHost(classify.KindCommandFailed); err != nil {
		return c.end(outcomeFailure, err)
	}
	return c.end(outcomeSuccess, c.mkdir(path, classify.KindCommandFailed))
}

func (c *call) mkdir(path string, kind classify.Kind) error {
	if strings.TrimSpace(path) == "" {
		return c.fail(kind, fmt.Errorf("directory path is required"))
	}
	_, err := c.exec(config.ClassShort, c.e.shellCommand(c.host, "mkdir -p "+path), classify.Policy{Kind: kind})
	return err
}

// CheckHostCapability runs the host check script for nodeCount nodes.
// Exit code 3 means not enough memory, 4 not enough CPU; any other failure
// is reported as bad parameters.
func (e *Engine) CheckHostCapability(ctx context.Context, host string, nodeCount int) error {
	c := e.begin(ctx, OpCheckHost, host, config.ClassMedium)
	if err := c.checkHost(classify.KindBadParameters); err != nil {
		return c.end(outcomeFailure, err)
	}

	cmd := e.scriptCommand(host, e.settings.Scripts.HostCheck, "-C", strconv.Itoa(nodeCount))
	_, err := c.exec(config.ClassMedium, cmd, classify.Policy{
		Kind: classify.KindBadParameters,
		ExitCodes: map[int]classify.Kind{
			3: classify.KindInsufficientMemory,
			4: classify.KindInsufficientCPU,
		},
	})
	return c.end(outcomeSuccess, err)
}

// CheckDockerPrerequisites runs the docker check script. The script reports
// a missing or broken docker with exit code 5 but every failure maps to the
// same kind.
func (e *Engine) CheckDockerPrerequisites(ctx context.Context, host string) error {
	c := e.begin(ctx, OpCheckDocker, host, config.ClassMedium)
	if err := c.checkHost(classify.KindDockerPrerequisiteFailed); err != nil {
		return c.end(outcomeFailure, err)
	}

	_, err := c.exec(config.ClassMedium, e.scriptCommand(host, e.settings.Scripts.DockerCheck), classify.Policy{
		Kind: classify.KindDockerPrerequisiteFailed,
		ExitCodes: map[int]classify.Kind{
			5: classify.KindDockerPrerequisiteFailed,
		},
	})
	return c.end(outcomeSuccess, err)
}

// RunHostInitScript runs the host init script, the first bootstrap step.
func (e *Engine) RunHostInitScript(ctx context.Context, host string) error {
	c := e.begin(ctx, OpHostInit, host, config.ClassMedium)
	if err := c.checkHost(classify.KindBootstrapFailed); err != nil {
		return c.end(outcomeFailure, err)
	}
	return c.end(outcomeSuccess, c.hostInit())
}

func (c *call) hostInit() error {
	_, err := c.exec(config.ClassMedium, c.e.scriptCommand(c.host, c.e.settings.Scripts.HostInit), classify.Policy{
		Kind: classify.KindBootstrapFailed,
	})
	return err
}

// BootstrapHost prepares host for node deployment: it runs the host init
// script, then creates rootPath. An empty rootPath is resolved through the
// configured registry. Either step failing is a bootstrap failure; the
// sequence is not resumable and callers retry it as a whole.
func (e *Engine) BootstrapHost(ctx context.Context, host, rootPath string) error {
	c := e.begin(ctx, OpBootstrap, host, config.ClassMedium)
	if err := c.checkHost(classify.KindBootstrapFailed); err != nil {
		return c.end(outcomeFailure, err)
	}

	if rootPath == "" {
		if e.registry == nil {
			return c.end(outcomeFailure, c.fail(classify.KindBootstrapFailed, fmt.Errorf("root path is required")))
		}
		resolved, err := e.registry.RootPath(c.op.Ctx, host)
		if err != nil {
			return c.end(outcomeFailure, c.fail(classify.KindBootstrapFailed, fmt.Errorf("failed to resolve root path: %w", err)))
		}
		rootPath = resolved
	}

	if err := c.hostInit(); err != nil {
		return c.end(outcomeFailure, err)
	}
	return c.end(outcomeSuccess, c.mkdir(rootPath, classify.KindBootstrapFailed))
}

// MoveRemoteDirectory runs mv -fv src dst on host. Any blank argument makes
// it a no-op so it can be invoked unconditionally from larger workflows.
func (e *Engine) MoveRemoteDirectory(ctx context.Context, host, src, dst string) error {
	c := e.begin(ctx, OpMoveDir, host, config.ClassShort)
	if isBlank(host, src, dst) {
		return c.end(outcomeSkipped, nil)
	}
	if err := c.checkHost(classify.KindCommandFailed); err != nil {
		return c.end(outcomeFailure, err)
	}

	_, err := c.exec(config.ClassShort, e.shellCommand(host, fmt.Sprintf("mv -fv %s %s", src, dst)), classify.Policy{
		Kind: classify.KindCommandFailed,
	})
	return c.end(outcomeSuccess, err)
}

func isBlank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
