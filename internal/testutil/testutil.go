// Package testutil provides testing utilities for vimbot tests.
package testutil

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// WriteFakeVim writes an executable shell script named name into dir that
// prints help for "--help" and exits 0 for anything else. It returns the
// script's path. Unix only; the test is skipped elsewhere.
func WriteFakeVim(t *testing.T, dir, name, help string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake vim scripts require a POSIX shell, skipping test")
	}

	var script strings.Builder
	script.WriteString("#!/bin/sh\n")
	script.WriteString("if [ \"$1\" = \"--help\" ]; then\n")
	script.WriteString("cat <<'HELP'\n")
	script.WriteString(help)
	if !strings.HasSuffix(help, "\n") {
		script.WriteString("\n")
	}
	script.WriteString("HELP\n")
	script.WriteString("fi\n")
	script.WriteString("exit 0\n")

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script.String()), 0755); err != nil {
		t.Fatalf("failed to write fake vim %s: %v", name, err)
	}
	return path
}

// ServerHelp is a --help excerpt from a vim built with +clientserver.
const ServerHelp = `VIM - Vi IMproved 9.1

Usage: vim [arguments] [file ..]       edit specified file(s)

Arguments:
   --remote <files>	Edit <files> in a Vim server if possible
   --remote-send <keys>	Send <keys> to a Vim server and exit
   --remote-expr <expr>	Evaluate <expr> in a Vim server and print result
   --serverlist		List available Vim server names and exit
   --servername <name>	Send to/become the Vim server <name>
`

// PlainHelp is a --help excerpt from a vim built without client-server support.
const PlainHelp = `VIM - Vi IMproved 9.1

Usage: vim [arguments] [file ..]       edit specified file(s)

Arguments:
   -v			Vi mode (like "vi")
   -e			Ex mode (like "ex")
   -u <vimrc>		Use <vimrc> instead of any .vimrc
`

// FindVimServer returns the first binary on PATH whose --help advertises
// client-server support, or "" if there is none.
func FindVimServer() string {
	for _, name := range []string{"vim", "gvim", "mvim"} {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		out, _ := exec.CommandContext(ctx, path, "--help").Output()
		cancel()
		if bytes.Contains(out, []byte("--server")) {
			return name
		}
	}
	return ""
}

// SkipIfNoVimServer skips the test if no client-server capable vim is installed.
// It returns the binary name otherwise.
func SkipIfNoVimServer(t *testing.T) string {
	t.Helper()

	binary := FindVimServer()
	if binary == "" {
		t.Skip("no vim with client-server support found in PATH, skipping test")
	}
	return binary
}

// SkipIfNoSh skips the test if no POSIX shell is available.
func SkipIfNoSh(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
}

// SkipIfNoPS skips the test if ps is not installed.
func SkipIfNoPS(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("ps"); err != nil {
		t.Skip("ps not found in PATH, skipping test")
	}
}

// WriteEmptyScript writes an empty vimscript into a temp dir and returns its path.
func WriteEmptyScript(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "empty.vim")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("failed to write empty script: %v", err)
	}
	return path
}
