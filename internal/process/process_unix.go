//go:build unix

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configure places the child in its own process group so helpers it spawns
// are stopped along with it.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func kill(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}

	return err
}
