package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vimbot/internal/errors"
	"github.com/Iron-Ham/vimbot/internal/server"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Quit leftover vimbot servers",
	Long: `Cleanup sends a quit command to every running server whose name matches
the pattern, by default every server vimbot named (<prefix>_*, prefix is
configured via vim.name_prefix, default: "VIMBOT").

Use --dry-run to list the servers without stopping them.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

var (
	cleanupMatch  string
	cleanupDryRun bool
)

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().StringVarP(&cleanupMatch, "match", "m", "", "glob of server names to stop (default: <prefix>_*)")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "list servers that would be stopped")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	pattern := cleanupMatch
	if pattern == "" {
		pattern = e.cfg.Vim.NamePrefix + "_*"
	}

	targets, err := listServers(cmd, e, pattern)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	p := newPalette(out)
	if len(targets) == 0 {
		fmt.Fprintln(out, p.muted.Render("No servers match "+pattern))
		return nil
	}

	ctx := cmd.Context()
	scfg := server.ConfigFrom(e.cfg)
	var errs []error
	for _, name := range targets {
		if cleanupDryRun {
			fmt.Fprintf(out, "would stop %s\n", name)
			continue
		}
		s, err := server.Attach(ctx, scfg, e.deps(), name)
		if err == nil {
			err = s.Stop(ctx)
		}
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", p.fail.Render("failed"), name, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "%s %s\n", p.ok.Render("stopped"), name)
	}
	return errors.Join(errs...)
}
