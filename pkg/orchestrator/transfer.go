package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/nodeops/nodeops/pkg/classify"
	"github.com/nodeops/nodeops/pkg/config"
)

// Direction of a transfer relative to the control machine.
type Direction int

const (
	// Up pushes a local path to the host.
	Up Direction = iota
	// Down pulls a remote path from the host.
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// TransferSpec describes a copy or fetch. It is computed before any remote
// command is issued and decides which pre-steps run.
type TransferSpec struct {
	Direction   Direction
	Source      string
	Destination string

	SourceIsDir  bool
	SourceIsFile bool
}

// inspectUpload stats the local source. A stat error is returned as is.
func inspectUpload(src, dst string) (TransferSpec, error) {
	spec := TransferSpec{Direction: Up, Source: src, Destination: dst}

	info, err := os.Stat(src)
	if err != nil {
		return spec, fmt.Errorf("failed to inspect local source: %w", err)
	}
	spec.SourceIsDir = info.IsDir()
	spec.SourceIsFile = info.Mode().IsRegular()
	return spec, nil
}

// inspectFetch decides whether the remote source names a directory without
// contacting the host: a trailing slash, or a local directory at the same
// path on control machines that mirror the deployment layout.
func inspectFetch(src, dst string) (TransferSpec, error) {
	spec := TransferSpec{Direction: Down, Source: src, Destination: dst}

	if strings.HasSuffix(src, "/") {
		spec.SourceIsDir = true
		return spec, nil
	}

	info, err := os.Stat(src)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		spec.SourceIsFile = true
	case err != nil:
		return spec, fmt.Errorf("failed to inspect source: %w", err)
	default:
		spec.SourceIsDir = info.IsDir()
		spec.SourceIsFile = !info.IsDir()
	}
	return spec, nil
}

// remoteMkdirTarget is the directory that must exist on the host before an
// upload: the destination's parent for a file, the destination itself for a
// directory, nothing for other source types.
func (s TransferSpec) remoteMkdirTarget() string {
	switch {
	case s.SourceIsDir:
		return s.Destination
	case s.SourceIsFile:
		return path.Dir(s.Destination)
	default:
		return ""
	}
}

// CopyUp pushes localSource to remoteDest on host. The local source is
// inspected first; a stat failure aborts before any remote command. The
// remote directory is created and must succeed before the synchronize runs.
// Blank arguments make it a no-op.
func (e *Engine) CopyUp(ctx context.Context, host, localSource, remoteDest string) error {
	c := e.begin(ctx, OpCopyUp, host, config.ClassShort)
	if isBlank(host, localSource, remoteDest) {
		return c.end(outcomeSkipped, nil)
	}
	if err := c.checkHost(classify.KindTransferFailed); err != nil {
		return c.end(outcomeFailure, err)
	}

	spec, err := inspectUpload(localSource, remoteDest)
	if err != nil {
		return c.end(outcomeFailure, c.fail(classify.KindTransferFailed, err))
	}

	if dir := spec.remoteMkdirTarget(); dir != "" {
		if err := c.mkdir(dir, classify.KindTransferFailed); err != nil {
			return c.end(outcomeFailure, err)
		}
	}

	_, err = c.exec(config.ClassShort, e.pushCommand(host, spec.Source, spec.Destination), classify.Policy{
		Kind: classify.KindTransferFailed,
	})
	return c.end(outcomeSuccess, err)
}

// FetchDown pulls remoteSource from host into localDest. Directory sources
// are rejected before any remote command. Blank arguments make it a no-op.
func (e *Engine) FetchDown(ctx context.Context, host, remoteSource, localDest string) error {
	c := e.begin(ctx, OpFetchDown, host, config.ClassShort)
	if isBlank(host, remoteSource, localDest) {
		return c.end(outcomeSkipped, nil)
	}
	if err := c.checkHost(classify.KindTransferFailed); err != nil {
		return c.end(outcomeFailure, err)
	}

	spec, err := inspectFetch(remoteSource, localDest)
	if err != nil {
		return c.end(outcomeFailure, c.fail(classify.KindTransferFailed, err))
	}
	if spec.SourceIsDir {
		return c.end(outcomeFailure, c.fail(classify.KindTransferFailed,
			fmt.Errorf("%w: %s", classify.ErrFetchDirectory, remoteSource)))
	}

	_, err = c.exec(config.ClassShort, e.pullCommand(host, spec.Source, spec.Destination), classify.Policy{
		Kind: classify.KindTransferFailed,
	})
	return c.end(outcomeSuccess, err)
}
