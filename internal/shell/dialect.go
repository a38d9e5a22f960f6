package shell

import (
	"runtime"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Dialect describes how arguments are quoted into a single command line for
// a particular shell.
type Dialect int

const (
	// Posix quotes for sh(1).
	Posix Dialect = iota
	// Cmd quotes for cmd.exe using [Escape].
	Cmd
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case Posix:
		return "posix"
	case Cmd:
		return "cmd"
	default:
		return "unknown"
	}
}

// DefaultDialect returns the dialect of the host's shell.
func DefaultDialect() Dialect {
	if runtime.GOOS == "windows" {
		return Cmd
	}
	return Posix
}

// Quote returns arg as one shell token. Arguments made only of characters
// that no shell treats specially are returned unchanged.
func (d Dialect) Quote(arg string) string {
	if arg != "" && isSafe(d, arg) {
		return arg
	}
	if d == Cmd {
		return Escape(arg)
	}
	return shellquote.Join(arg)
}

// CommandLine joins the binary and its arguments into one command line.
func (d Dialect) CommandLine(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, d.Quote(binary))
	for _, a := range args {
		parts = append(parts, d.Quote(a))
	}
	return strings.Join(parts, " ")
}

// isSafe reports whether every rune of s can appear unquoted.
func isSafe(d Dialect, s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		}
		switch r {
		case '-', '_', '.', '/', '@', ':', ',', '+', '=':
			return false
		case '\\':
			// Path separator on windows, escape character for sh.
			return d != Cmd
		}
		return true
	}) == -1
}
