//go:build !unix

package buildtool

import (
	"os"
	"syscall"
)

func groupAttr() *syscall.SysProcAttr { return nil }

func terminateGroup(p *os.Process) {
	if p != nil {
		_ = p.Kill()
	}
}

func killGroup(p *os.Process) {
	if p != nil {
		_ = p.Kill()
	}
}
