package cmd

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Colors follow the TUI palette.
var (
	okColor     = lipgloss.Color("#10B981") // Green
	failColor   = lipgloss.Color("#F87171") // Red
	mutedColor  = lipgloss.Color("#9CA3AF") // Gray
	accentColor = lipgloss.Color("#A78BFA") // Purple
)

// palette holds styles rendered for one writer. Writers that are not a
// terminal get plain text.
type palette struct {
	ok     lipgloss.Style
	fail   lipgloss.Style
	muted  lipgloss.Style
	accent lipgloss.Style
	header lipgloss.Style
}

func newPalette(w io.Writer) palette {
	r := lipgloss.NewRenderer(w)
	return palette{
		ok:     r.NewStyle().Foreground(okColor),
		fail:   r.NewStyle().Foreground(failColor).Bold(true),
		muted:  r.NewStyle().Foreground(mutedColor),
		accent: r.NewStyle().Foreground(accentColor),
		header: r.NewStyle().Bold(true).Underline(true),
	}
}

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
