package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vimbot/internal/vim"
)

var probeCmd = &cobra.Command{
	Use:   "probe [binary...]",
	Short: "Check which vim binaries support client-server mode",
	Long: `Probe runs each binary with --help and reports whether it supports
client-server mode. Without arguments it probes the configured candidates
and shows which one vimbot would use.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	resolver := &vim.Resolver{Runner: e.runner, Candidates: e.cfg.Vim.Candidates}

	candidates := args
	if len(candidates) == 0 {
		candidates = resolver.Candidates
		if len(candidates) == 0 {
			candidates = vim.DefaultBinaries
		}
	}

	out := cmd.OutOrStdout()
	p := newPalette(out)

	width := len("BINARY")
	for _, c := range candidates {
		width = max(width, len(c))
	}
	fmt.Fprintln(out, p.header.Render(fmt.Sprintf("%-*s  %s", width, "BINARY", "CLIENT-SERVER")))
	for _, res := range resolver.Probe(ctx, candidates) {
		mark := p.fail.Render("no")
		if res.Capable {
			mark = p.ok.Render("yes")
		}
		fmt.Fprintf(out, "%-*s  %s\n", width, res.Binary, mark)
	}

	if len(args) > 0 {
		return nil
	}

	binary, err := resolver.Resolve(ctx, e.cfg.Vim.Binary)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nUsing %s\n", p.accent.Render(binary))
	return nil
}
