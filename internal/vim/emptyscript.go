package vim

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// EmptyScriptName is the file name of the built-in empty vimscript.
const EmptyScriptName = "empty.vim"

// DefaultScriptDir returns the directory holding the built-in empty
// vimscript: <user cache dir>/vimbot, or the temp dir when there is no
// cache dir.
func DefaultScriptDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "vimbot")
	}
	return filepath.Join(os.TempDir(), "vimbot")
}

// EnsureEmptyScript makes sure dir contains an empty vimscript and returns
// its path. Passing it to -u and -U starts vim without any user
// configuration. An existing non-empty file is truncated.
func EnsureEmptyScript(fs afero.Fs, dir string) (string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create script directory: %w", err)
	}

	path := filepath.Join(dir, EmptyScriptName)
	if info, err := fs.Stat(path); err == nil && !info.IsDir() && info.Size() == 0 {
		return path, nil
	}

	if err := afero.WriteFile(fs, path, nil, 0644); err != nil {
		return "", fmt.Errorf("failed to write empty script: %w", err)
	}
	return path, nil
}
