package shell

import (
	"runtime"
	"testing"

	"github.com/kballard/go-shellquote"
)

func TestDialect_String(t *testing.T) {
	tests := []struct {
		d    Dialect
		want string
	}{
		{Posix, "posix"},
		{Cmd, "cmd"},
		{Dialect(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("Dialect(%d).String() = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestDefaultDialect(t *testing.T) {
	want := Posix
	if runtime.GOOS == "windows" {
		want = Cmd
	}
	if got := DefaultDialect(); got != want {
		t.Errorf("DefaultDialect() = %v, want %v", got, want)
	}
}

func TestQuote_SafeTokensAreBare(t *testing.T) {
	safe := []string{"vim", "--servername", "VIMBOT_12", "--remote-expr", "/usr/bin/vim", "a=b,c+d@e:f"}
	for _, d := range []Dialect{Posix, Cmd} {
		for _, s := range safe {
			if got := d.Quote(s); got != s {
				t.Errorf("%v.Quote(%q) = %q, want unchanged", d, s, got)
			}
		}
	}
}

func TestQuote_Cmd(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", `""`},
		{`C:\vim\gvim.exe`, `C:\vim\gvim.exe`},
		{"8 + 1", `"8 + 1"`},
		{"<Esc>dd", `"<Esc>dd"`},
		{"100%", `"100%%"`},
	}
	for _, tt := range tests {
		if got := Cmd.Quote(tt.in); got != tt.want {
			t.Errorf("Cmd.Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQuote_PosixRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"8 + 1",
		"'foo' . 'bar' . 'baz'",
		`"foo" . "bar" . "baz"`,
		"who's that?",
		`trailing\`,
		"100%",
		"$HOME `id` $(id)",
		"<Esc>:qall!<CR>",
		"line1\nline2",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			words, err := shellquote.Split(Posix.Quote(in))
			if err != nil {
				t.Fatalf("Split(Quote(%q)) error: %v", in, err)
			}
			if len(words) != 1 || words[0] != in {
				t.Errorf("Split(Quote(%q)) = %q, want [%q]", in, words, in)
			}
		})
	}
}

func TestCommandLine_Posix(t *testing.T) {
	args := []string{"--servername", "VIMBOT_1", "--remote-send", "i who's that?<Esc>"}
	line := Posix.CommandLine("vim", args...)

	words, err := shellquote.Split(line)
	if err != nil {
		t.Fatalf("Split(%q) error: %v", line, err)
	}
	want := append([]string{"vim"}, args...)
	if len(words) != len(want) {
		t.Fatalf("Split(%q) = %q, want %q", line, words, want)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word[%d] = %q, want %q", i, words[i], want[i])
		}
	}
}

func TestCommandLine_Cmd(t *testing.T) {
	line := Cmd.CommandLine("gvim", "--servername", "VIMBOT_2", "--remote-expr", `"a" . "b"`)
	want := `gvim --servername VIMBOT_2 --remote-expr "\"a\" . \"b\""`
	if line != want {
		t.Errorf("CommandLine() = %s, want %s", line, want)
	}
}
