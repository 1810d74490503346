//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
)

func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// exitedNormally cannot tell a kill from an exit here, so a fired kill
// always counts as a timeout.
func exitedNormally(ps *os.ProcessState) bool { return false }

func exitSignal(ps *os.ProcessState) *int { return nil }

func maxRSSKiB(ps *os.ProcessState) int64 { return 0 }
