package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nodeops/nodeops/pkg/classify"
	"github.com/nodeops/nodeops/pkg/config"
	"github.com/nodeops/nodeops/pkg/runner"
	"github.com/nodeops/nodeops/pkg/stores"
	"github.com/nodeops/nodeops/pkg/telemetry"
)

// Operation names used in logs, metrics, spans and failures.
const (
	OpCheckTool       = "check_tool"
	OpPing            = "ping"
	OpExec            = "exec"
	OpMkdir           = "mkdir"
	OpCopyUp          = "copy_up"
	OpFetchDown       = "fetch_down"
	OpCheckHost       = "check_host"
	OpCheckDocker     = "check_docker"
	OpHostInit        = "host_init"
	OpBootstrap       = "bootstrap"
	OpImageExists     = "image_exists"
	OpContainerExists = "container_exists"
	OpPullImage       = "pull_image"
	OpDocker          = "docker"
	OpMoveDir         = "move_dir"
)

// Operation outcomes as reported to telemetry.
const (
	outcomeSuccess   = "success"
	outcomeNotFound  = "not_found"
	outcomeSkipped   = "skipped"
	outcomeCompleted = "completed"
	outcomeFailure   = "failure"
)

// Config wires an Engine.
type Config struct {
	// Settings is copied into the engine and never mutated.
	Settings config.Config

	// Runner executes the rendered command lines.
	Runner runner.Runner

	// Registry resolves deployment root paths. Optional.
	Registry stores.Registry

	// Telemetry is optional; nil disables logs, spans and metrics.
	Telemetry *telemetry.Telemetry
}

// Engine is the catalog of remote provisioning operations. Every method
// blocks until its remote commands return or time out, and is safe to call
// concurrently for different hosts. The engine never retries.
type Engine struct {
	settings config.Config
	runner   runner.Runner
	registry stores.Registry
	tel      *telemetry.Telemetry
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Settings.Tool.Binary == "" {
		return nil, fmt.Errorf("tool binary is required")
	}

	base := cfg.Telemetry
	if base == nil {
		base = telemetry.Noop()
	}
	tel := *base
	tel.Logger = base.Logger.NewComponentLogger("orchestrator")

	return &Engine{
		settings: cfg.Settings,
		runner:   cfg.Runner,
		registry: cfg.Registry,
		tel:      &tel,
	}, nil
}

// call is one in-flight engine operation. Multi-step operations issue
// several commands under the same call.
type call struct {
	e    *Engine
	name string
	host string
	id   string
	op   *telemetry.Operation
}

func (e *Engine) begin(ctx context.Context, name, host string, class config.TimeoutClass) *call {
	id := uuid.NewString()
	return &call{
		e:    e,
		name: name,
		host: host,
		id:   id,
		op:   e.tel.StartOperation(ctx, name, id, host, string(class)),
	}
}

// exec runs one command and classifies its result. A failure comes back as
// a *classify.Failure carrying the operation context; a transport error is
// reported as a failure of p.Kind without consulting the policy.
func (c *call) exec(class config.TimeoutClass, command string, p classify.Policy) (classify.Outcome, error) {
	_, out, err := c.run(class, command, p)
	return out, err
}

func (c *call) run(class config.TimeoutClass, command string, p classify.Policy) (runner.Result, classify.Outcome, error) {
	timeout := c.e.settings.Timeouts.For(class)
	c.e.tel.Metrics.RecordCommand(string(class))
	c.op.Logger.WithField("command", command).Debug("Running remote command")

	res, runErr := c.e.runner.Run(c.op.Ctx, runner.Request{
		ID:      c.id,
		Host:    c.host,
		Command: command,
		Timeout: timeout,
	})

	log := c.op.Logger.WithFields(map[string]interface{}{
		"exit_code": res.ExitCode,
		"duration":  res.Duration.String(),
	})

	if runErr != nil {
		f := &classify.Failure{Kind: p.Kind, ExitCode: res.ExitCode, Output: res.Output, Err: runErr}
		c.annotate(f, class, command)
		log.WithError(runErr).Error("Remote command could not be executed")
		return res, classify.Outcome{Status: classify.StatusFailure, Kind: p.Kind, ExitCode: res.ExitCode}, f
	}

	out := classify.Classify(res, p)
	if f := out.Err(); f != nil {
		c.annotate(f, class, command)
		log.WithField("kind", string(f.Kind)).Debug("Remote command failed")
		return res, out, f
	}

	log.WithField("status", out.Status.String()).Debug("Remote command finished")
	return res, out, nil
}

func (c *call) annotate(f *classify.Failure, class config.TimeoutClass, command string) {
	f.WithHost(c.host).WithOperation(c.name).WithClass(string(class)).WithCommand(command)
}

// fail builds a failure that happened before any command was issued.
func (c *call) fail(kind classify.Kind, err error) *classify.Failure {
	return classify.NewFailure(kind, err).WithHost(c.host).WithOperation(c.name)
}

// end records the operation outcome and returns err unchanged.
func (c *call) end(outcome string, err error) error {
	if err != nil {
		outcome = outcomeFailure
		kind, _ := classify.KindOf(err)
		c.op.Logger.WithError(err).WithField("kind", string(kind)).Error("Operation failed")
		c.op.End(outcome, string(kind), err)
		return err
	}

	switch outcome {
	case outcomeNotFound:
		c.op.Logger.Warn("Operation target not found")
	case outcomeSkipped:
		c.op.Logger.Debug("Operation skipped")
	case outcomeCompleted:
		c.op.Logger.Debug("Operation completed")
	default:
		c.op.Logger.WithField("duration", c.op.Timer.Duration().String()).Info("Operation succeeded")
	}
	c.op.End(outcome, "", nil)
	return nil
}

// checkHost validates host before any command is rendered.
func (c *call) checkHost(kind classify.Kind) error {
	if err := validateHost(c.host); err != nil {
		return c.fail(kind, err)
	}
	return nil
}
