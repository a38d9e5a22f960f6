//go:build windows

package shell

import (
	"context"
	"os/exec"
	"syscall"
)

func shellCommand(ctx context.Context, line string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "cmd")
	// cmd.exe does its own parsing; hand it the line verbatim.
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: `cmd /S /C "` + line + `"`}
	return cmd
}

// startDetached uses `start` so the editor gets its own console window.
func (r *ExecRunner) startDetached(binary string, args ...string) error {
	line := `start "" ` + Cmd.CommandLine(binary, args...)
	cmd := exec.Command("cmd")
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: `cmd /S /C "` + line + `"`}
	cmd.Env = r.environ()
	return cmd.Run()
}
