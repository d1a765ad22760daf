package orchestrator

import (
	"context"
	"errors"

	"github.com/nodeops/nodeops/pkg/classify"
	"github.com/nodeops/nodeops/pkg/config"
	"github.com/nodeops/nodeops/pkg/runner"
)

// existencePolicy is shared by the image and container checks. The scripts
// print the not-found marker for an absent target and exit 2 on bad
// parameters. Other failures are treated as "present" unless strict checks
// are enabled, so a flaky check skips a pull rather than forcing one.
func (e *Engine) existencePolicy(paramKind classify.Kind) classify.Policy {
	return classify.Policy{
		Kind:                   paramKind,
		NotFoundMarker:         classify.NotFoundMarker,
		ExitCodes:              map[int]classify.Kind{2: paramKind},
		TolerateUnknownFailure: !e.settings.StrictExistenceChecks,
	}
}

func (c *call) exists(command string, paramKind classify.Kind) (bool, error) {
	res, out, err := c.run(config.ClassLong, command, c.e.existencePolicy(paramKind))
	if err != nil {
		return false, err
	}
	if out.Status == classify.StatusNotFound {
		return false, nil
	}
	if !res.Succeeded() {
		c.op.Logger.WithFields(map[string]interface{}{
			"exit_code": res.ExitCode,
			"output":    res.Output,
		}).Warn("Existence check failed without not-found marker, assuming present")
	}
	return true, nil
}

// ImageExists reports whether imageTag is present on host.
func (e *Engine) ImageExists(ctx context.Context, host, imageTag string) (bool, error) {
	c := e.begin(ctx, OpImageExists, host, config.ClassLong)
	if err := c.checkHost(classify.KindImageCheckParamError); err != nil {
		return false, c.end(outcomeFailure, err)
	}

	found, err := c.exists(e.scriptCommand(host, e.settings.Scripts.ImageCheck, "-i", imageTag), classify.KindImageCheckParamError)
	return found, c.end(presence(found), err)
}

// ContainerExists reports whether a container named name exists on host.
func (e *Engine) ContainerExists(ctx context.Context, host, name string) (bool, error) {
	c := e.begin(ctx, OpContainerExists, host, config.ClassLong)
	if err := c.checkHost(classify.KindContainerCheckParamError); err != nil {
		return false, c.end(outcomeFailure, err)
	}

	found, err := c.exists(e.scriptCommand(host, e.settings.Scripts.ContainerCheck, "-c", name), classify.KindContainerCheckParamError)
	return found, c.end(presence(found), err)
}

func presence(found bool) string {
	if found {
		return outcomeSuccess
	}
	return outcomeNotFound
}

// PullImageIfAbsent loads imageTag on host through the CDN pull script into
// outputDir, unless the image is already present. Repeated calls issue at
// most one pull.
func (e *Engine) PullImageIfAbsent(ctx context.Context, host, outputDir, imageTag, version string) error {
	c := e.begin(ctx, OpPullImage, host, config.ClassLong)
	if err := c.checkHost(classify.KindPullFailed); err != nil {
		return c.end(outcomeFailure, err)
	}

	found, err := c.exists(e.scriptCommand(host, e.settings.Scripts.ImageCheck, "-i", imageTag), classify.KindImageCheckParamError)
	if err != nil {
		return c.end(outcomeFailure, err)
	}
	if found {
		c.op.Logger.WithField("image", imageTag).Info("Image already present, skipping pull")
		return c.end(outcomeSkipped, nil)
	}

	cmd := e.scriptCommand(host, e.settings.Scripts.ImagePullCDN, "-d", outputDir, "-v", version)
	_, err = c.exec(config.ClassLong, cmd, classify.Policy{Kind: classify.KindPullFailed})
	return c.end(outcomeSuccess, err)
}

// RunDockerCommand runs a docker command line on host and returns the raw
// result for the caller to interpret. The error is set only when the host is
// invalid or the command could not be executed at all.
func (e *Engine) RunDockerCommand(ctx context.Context, host, dockerCommand string) (runner.Result, error) {
	c := e.begin(ctx, OpDocker, host, config.ClassMedium)
	if err := c.checkHost(classify.KindCommandFailed); err != nil {
		return runner.Result{ExitCode: runner.ExitCodeUnknown}, c.end(outcomeFailure, err)
	}

	res, _, err := c.run(config.ClassMedium, e.shellCommand(host, dockerCommand), classify.Policy{
		Kind: classify.KindCommandFailed,
	})

	// Only a transport failure keeps its runner error; classified failures
	// are returned as data.
	var f *classify.Failure
	if errors.As(err, &f) && f.Err != nil && !errors.Is(f.Err, classify.ErrTimedOut) {
		return res, c.end(outcomeFailure, err)
	}
	return res, c.end(outcomeCompleted, nil)
}
