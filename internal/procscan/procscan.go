// Package procscan finds the process id of a launched editor by scraping
// the process list. Discovery is best effort: a miss is not an error.
package procscan

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Iron-Ham/vimbot/internal/shell"
)

// Finder looks up the pid of a running binary.
type Finder interface {
	// FindPID returns the newest live process whose command is binary.
	FindPID(ctx context.Context, binary string) (int, bool)
}

// Entry is one row of the process list.
type Entry struct {
	PID     int
	Command string
}

// PSFinder implements Finder by running ps(1) through a shell.Runner.
type PSFinder struct {
	Runner shell.Runner

	// Alive reports whether a pid is still running. Defaults to a signal-0
	// probe.
	Alive func(pid int) bool
}

// NewPSFinder returns a PSFinder using runner.
func NewPSFinder(runner shell.Runner) *PSFinder {
	return &PSFinder{Runner: runner, Alive: processAlive}
}

// psArgs lists every process with just its pid and command name.
var psArgs = []string{"-A", "-o", "pid=", "-o", "comm="}

// FindPID implements Finder.
func (f *PSFinder) FindPID(ctx context.Context, binary string) (int, bool) {
	res, err := f.Runner.Run(ctx, "ps", psArgs...)
	if err != nil || res.ExitCode != 0 {
		return 0, false
	}

	alive := f.Alive
	if alive == nil {
		alive = processAlive
	}
	return Newest(ParsePS(res.Stdout), binary, alive)
}

// ParsePS parses "pid comm" rows. Malformed rows are skipped.
func ParsePS(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || pid <= 0 {
			continue
		}
		// comm may contain spaces on some platforms.
		entries = append(entries, Entry{PID: pid, Command: strings.Join(fields[1:], " ")})
	}
	return entries
}

// Newest returns the highest live pid among entries whose command matches
// binary by base name.
func Newest(entries []Entry, binary string, alive func(int) bool) (int, bool) {
	want := commandName(binary)
	best := 0
	for _, e := range entries {
		if commandName(e.Command) != want || e.PID <= best {
			continue
		}
		if alive != nil && !alive(e.PID) {
			continue
		}
		best = e.PID
	}
	return best, best > 0
}

// commandName normalizes a path or command to its base name without .exe.
func commandName(s string) string {
	s = strings.ReplaceAll(s, `\`, "/")
	base := filepath.Base(strings.TrimSpace(s))
	return strings.TrimSuffix(strings.ToLower(base), ".exe")
}

// Verify interface implementation at compile time.
var _ Finder = (*PSFinder)(nil)
