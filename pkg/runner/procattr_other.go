//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

var (
	sigterm = os.Kill
	sigkill = os.Kill
)

func setProcessGroup(*exec.Cmd) {}

func signalProcessGroup(cmd *exec.Cmd, sig os.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}
