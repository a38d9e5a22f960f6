package cmd

import (
	"fmt"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vimbot/internal/server"
	"github.com/Iron-Ham/vimbot/internal/vim"
)

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List running vim servers",
	Long: `Servers prints every server name the vim binary can see, one per line.
Use --match to filter with a glob pattern, e.g. --match 'VIMBOT_*'.`,
	Args: cobra.NoArgs,
	RunE: runServers,
}

var serversMatch string

func init() {
	rootCmd.AddCommand(serversCmd)
	serversCmd.Flags().StringVarP(&serversMatch, "match", "m", "", "only list servers matching this glob")
}

func runServers(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	names, err := listServers(cmd, e, serversMatch)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(cmd.OutOrStdout(), n)
	}
	return nil
}

// listServers resolves a client binary and returns the server names that
// match pattern. An empty pattern matches everything.
func listServers(cmd *cobra.Command, e *env, pattern string) ([]string, error) {
	var g glob.Glob
	if pattern != "" {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		g = compiled
	}

	ctx := cmd.Context()
	resolver := &vim.Resolver{Runner: e.runner, Candidates: e.cfg.Vim.Candidates}
	binary, err := resolver.Resolve(ctx, e.cfg.Vim.Binary)
	if err != nil {
		return nil, err
	}

	all, err := server.ListServers(ctx, e.runner, binary)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return all, nil
	}

	var matched []string
	for _, n := range all {
		if g.Match(n) {
			matched = append(matched, n)
		}
	}
	return matched, nil
}
