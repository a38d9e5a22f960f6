package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vimbot/internal/server"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactively evaluate expressions in vim",
	Long: `Repl reads lines from stdin and evaluates each one as a vim expression,
printing the result. Lines starting with a colon are commands:

  :send <keys>   send keystrokes (vim <> notation)
  :servers       list running servers
  :name          print the server name
  :quit          leave the repl (also :q or end of input)

The server is stopped on exit unless --server was given.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

const replPrompt = "vimbot> "

func init() {
	rootCmd.AddCommand(replCmd)
	addServerFlag(replCmd)
}

func runRepl(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	return e.withSession(cmd.Context(), cmd, server.ConfigFrom(e.cfg), func(s *server.Session) error {
		in := cmd.InOrStdin()
		interactive := isTerminal(in)
		if interactive {
			p := newPalette(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s (%s). Type :quit to exit.\n",
				p.accent.Render(s.Name()), s.Binary())
		}
		return repl(cmd, s, in, interactive)
	})
}

func repl(cmd *cobra.Command, s *server.Session, in io.Reader, interactive bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	p := newPalette(out)

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, replPrompt)
		}
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmdName, rest, _ := strings.Cut(line, " ")
		switch cmdName {
		case ":q", ":quit":
			return nil
		case ":name":
			fmt.Fprintln(out, s.Name())
		case ":servers":
			servers, err := s.ServerNames(ctx)
			if err != nil {
				fmt.Fprintln(out, p.fail.Render(err.Error()))
				continue
			}
			for _, n := range servers {
				fmt.Fprintln(out, n)
			}
		case ":send":
			if err := s.SendKeys(ctx, rest); err != nil {
				fmt.Fprintln(out, p.fail.Render(err.Error()))
			}
		default:
			if strings.HasPrefix(cmdName, ":") {
				fmt.Fprintln(out, p.fail.Render("unknown command "+cmdName))
				continue
			}
			result, err := s.Evaluate(ctx, line)
			if err != nil {
				fmt.Fprintln(out, p.fail.Render(err.Error()))
				continue
			}
			fmt.Fprintln(out, result)
		}
	}
	if interactive {
		fmt.Fprintln(out)
	}
	return scanner.Err()
}
