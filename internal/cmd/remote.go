package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vimbot/internal/server"
)

var evalCmd = &cobra.Command{
	Use:   "eval <expr>",
	Short: "Evaluate a vim expression",
	Long: `Eval starts a vim server, evaluates the expression with --remote-expr,
prints the result and stops the server again. With --server the
expression is evaluated in an existing server instead.

  vimbot eval 'has("clientserver")'
  vimbot eval --server GVIM 'expand("%:p")'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEval,
}

var sendCmd = &cobra.Command{
	Use:   "send <keys>",
	Short: "Send keystrokes to vim",
	Long: `Send types keys into a vim server with --remote-send. Special keys use
vim's <> notation, e.g. '<Esc>:w<CR>'. Without --server a throwaway server
is started, which is mostly useful together with 'eval' in a script.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(sendCmd)
	addServerFlag(evalCmd)
	addServerFlag(sendCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	expr := strings.Join(args, " ")
	return e.withSession(cmd.Context(), cmd, server.ConfigFrom(e.cfg), func(s *server.Session) error {
		result, err := s.Evaluate(cmd.Context(), expr)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result)
		return nil
	})
}

func runSend(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	keys := strings.Join(args, " ")
	return e.withSession(cmd.Context(), cmd, server.ConfigFrom(e.cfg), func(s *server.Session) error {
		return s.SendKeys(cmd.Context(), keys)
	})
}
