//go:build !unix

package process

import (
	"os"
	"os/exec"
)

func setProcessGroup(_ *exec.Cmd) {}

func killTree(p *os.Process) error {
	return p.Kill()
}

func exitSignal(_ *os.ProcessState) string {
	return ""
}
