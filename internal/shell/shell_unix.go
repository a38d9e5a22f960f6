//go:build !windows

package shell

import (
	"context"
	"io"
	"os/exec"

	"github.com/creack/pty"
)

// Terminal size given to launched editors.
const (
	launchRows = 50
	launchCols = 200
)

func shellCommand(ctx context.Context, line string) *exec.Cmd {
	return exec.CommandContext(ctx, "sh", "-c", line)
}

// startDetached runs the binary on its own pseudo terminal so terminal vim
// has a tty to draw on. Output is drained and the child reaped in the
// background.
func (r *ExecRunner) startDetached(binary string, args ...string) error {
	cmd := exec.Command(binary, args...)
	cmd.Env = r.environ()

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: launchRows, Cols: launchCols})
	if err != nil {
		return err
	}

	go func() {
		_, _ = io.Copy(io.Discard, ptmx)
	}()
	go func() {
		_ = cmd.Wait()
		_ = ptmx.Close()
	}()
	return nil
}
