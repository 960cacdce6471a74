//go:build windows

package daemon

import "os/exec"

func shellCommand(command string) *exec.Cmd {
	return exec.Command("cmd.exe", "/C", command)
}
