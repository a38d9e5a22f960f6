package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vimbot/internal/logging"
	"github.com/Iron-Ham/vimbot/internal/script"
	"github.com/Iron-Ham/vimbot/internal/server"
)

var scriptCmd = &cobra.Command{
	Use:   "script <file.yaml>",
	Short: "Run a YAML step file against vim",
	Long: `Script runs the steps of a YAML file in a fresh vim server (or the one
named by --server) and reports each step:

  vimrc: fixtures/minimal.vim
  steps:
    - send: "ifoo<Esc>"
    - eval: "getline('.')"
      expect: "foo"
    - eval: "1 + []"
      expect_error: invalid_expression

With --watch the file is re-run every time it changes until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

var scriptWatch bool

// watchDebounce coalesces the bursts of events editors produce on save.
const watchDebounce = 150 * time.Millisecond

func init() {
	rootCmd.AddCommand(scriptCmd)
	addServerFlag(scriptCmd)
	scriptCmd.Flags().BoolVarP(&scriptWatch, "watch", "w", false, "re-run the script when the file changes")
}

func runScript(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	path := args[0]
	if !scriptWatch {
		return runScriptOnce(cmd, e, path)
	}
	return watchScript(cmd, e, path)
}

func runScriptOnce(cmd *cobra.Command, e *env, path string) error {
	s, err := script.Load(appFs, path)
	if err != nil {
		return err
	}

	scfg := server.ConfigFrom(e.cfg)
	if s.Vimrc != "" {
		scfg.Vimrc = resolveRelative(path, s.Vimrc)
	}
	if s.Gvimrc != "" {
		scfg.Gvimrc = resolveRelative(path, s.Gvimrc)
	}

	var report script.Report
	err = e.withSession(cmd.Context(), cmd, scfg, func(sess *server.Session) error {
		report = script.Run(cmd.Context(), sess, s, e.logger.WithServer(sess.Name()))
		return nil
	})
	if err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), report)
	if !report.Passed() {
		return fmt.Errorf("script failed: %d of %d steps failed, %d skipped", report.Failed(), report.Total, report.Skipped())
	}
	return nil
}

// resolveRelative makes ref relative to the directory of the script.
func resolveRelative(scriptPath, ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(scriptPath), ref)
}

func printReport(w io.Writer, r script.Report) {
	p := newPalette(w)
	for _, res := range r.Results {
		if res.Passed {
			fmt.Fprintf(w, "%s %d. %s\n", p.ok.Render("PASS"), res.Index+1, res.Step)
			if res.Output != "" {
				fmt.Fprintf(w, "       %s\n", p.muted.Render(res.Output))
			}
			continue
		}
		fmt.Fprintf(w, "%s %d. %s\n", p.fail.Render("FAIL"), res.Index+1, res.Step)
		fmt.Fprintf(w, "       %s\n", res.Message)
	}
	passed := len(r.Results) - r.Failed()
	fmt.Fprintf(w, "\n%d passed, %d failed, %d skipped\n", passed, r.Failed(), r.Skipped())
}

// watchScript runs the script, then re-runs it on every change to the file
// until the command context ends. Failures are printed, not returned.
func watchScript(cmd *cobra.Command, e *env, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors often replace the file on save.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	p := newPalette(out)
	rerun := func() {
		if err := runScriptOnce(cmd, e, path); err != nil {
			fmt.Fprintln(out, p.fail.Render(err.Error()))
		}
		fmt.Fprintln(out, p.muted.Render("watching "+path+" for changes"))
	}
	rerun()

	return watchLoop(cmd.Context(), watcher, abs, e.logger, rerun)
}

// watchLoop calls fn after events on file settle. It returns nil when ctx
// ends.
func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, file string, logger *logging.Logger, fn func()) error {
	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != file || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			logger.Debug("script changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			timerCh = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", "error", err)
		case <-timerCh:
			timerCh = nil
			fn()
		}
	}
}
