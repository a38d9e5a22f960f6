package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Iron-Ham/vimbot/internal/shell"
)

// Call records one invocation made through a FakeVim.
type Call struct {
	Binary   string
	Args     []string
	Detached bool
}

// FakeVim is an in-memory shell.Runner that behaves like a set of vim
// binaries sharing one server registry. It is safe for concurrent use.
//
// Binaries registered with Capable answer --help with ServerHelp, those
// registered with Incapable answer with PlainHelp, and any other binary
// fails to run. Detached launches with --servername register a server that
// shows up in --serverlist after UpAfter polls.
type FakeVim struct {
	// UpAfter is the number of --serverlist calls that miss a newly
	// launched server before it appears. Negative means never.
	UpAfter int

	// StartErr is returned by every Start call when set.
	StartErr error

	// OnSend, when set, returns the stderr produced by a remote-send.
	OnSend func(server, keys string) string

	// OnExpr, when set, returns the stdout and stderr of a remote-expr.
	// Without it, expressions are looked up in Exprs.
	OnExpr func(server, expr string) (stdout, stderr string)

	// Exprs maps expressions to results for the default remote-expr handler.
	Exprs map[string]string

	// PS is the stdout returned for "ps".
	PS string

	mu      sync.Mutex
	help    map[string]string
	servers []*FakeServer
	pending map[string]int
	calls   []Call
}

// FakeServer is a running server inside a FakeVim.
type FakeServer struct {
	Name   string
	Binary string
	Args   []string
	Keys   []string
}

// NewFakeVim returns a FakeVim where every binary in capable supports
// client-server mode.
func NewFakeVim(capable ...string) *FakeVim {
	f := &FakeVim{
		help:    make(map[string]string),
		pending: make(map[string]int),
		Exprs:   make(map[string]string),
	}
	f.Capable(capable...)
	return f
}

// Capable marks binaries as supporting client-server mode.
func (f *FakeVim) Capable(binaries ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range binaries {
		f.help[b] = ServerHelp
	}
}

// Incapable marks binaries as installed without client-server mode.
func (f *FakeVim) Incapable(binaries ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range binaries {
		f.help[b] = PlainHelp
	}
}

// AddServer registers a running server that vimbot did not launch.
func (f *FakeVim) AddServer(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.servers = append(f.servers, &FakeServer{Name: name})
}

// Kill removes a server as if its process had died.
func (f *FakeVim) Kill(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(name)
}

// Server returns a copy of the named server.
func (f *FakeVim) Server(name string) (FakeServer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.findLocked(name); s != nil {
		cp := *s
		cp.Keys = slices.Clone(s.Keys)
		cp.Args = slices.Clone(s.Args)
		return cp, true
	}
	return FakeServer{}, false
}

// ServerNames returns the names of the visible servers in launch order.
func (f *FakeVim) ServerNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.servers))
	for _, s := range f.servers {
		if _, waiting := f.pending[s.Name]; !waiting {
			names = append(names, s.Name)
		}
	}
	return names
}

// Calls returns every invocation so far.
func (f *FakeVim) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	for i, c := range f.calls {
		out[i] = Call{Binary: c.Binary, Args: slices.Clone(c.Args), Detached: c.Detached}
	}
	return out
}

// CallsTo returns the invocations that pass flag.
func (f *FakeVim) CallsTo(flag string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if slices.Contains(c.Args, flag) {
			out = append(out, c)
		}
	}
	return out
}

// Start implements shell.Runner.
func (f *FakeVim) Start(ctx context.Context, binary string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Binary: binary, Args: slices.Clone(args), Detached: true})
	if f.StartErr != nil {
		return f.StartErr
	}
	if _, ok := f.help[binary]; !ok {
		return fmt.Errorf("failed to launch %s: executable file not found", binary)
	}

	name := argAfter(args, "--servername")
	if name == "" {
		return nil
	}
	f.servers = append(f.servers, &FakeServer{Name: name, Binary: binary, Args: slices.Clone(args)})
	if f.UpAfter != 0 {
		f.pending[name] = f.UpAfter
	}
	return nil
}

// Run implements shell.Runner.
func (f *FakeVim) Run(ctx context.Context, binary string, args ...string) (shell.Result, error) {
	if err := ctx.Err(); err != nil {
		return shell.Result{}, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Binary: binary, Args: slices.Clone(args)})

	if binary == "ps" {
		out := f.PS
		f.mu.Unlock()
		return shell.Result{Stdout: out}, nil
	}

	help, installed := f.help[binary]
	if !installed {
		f.mu.Unlock()
		return shell.Result{}, fmt.Errorf("failed to run %s: executable file not found", binary)
	}

	switch {
	case slices.Contains(args, "--serverlist"):
		var b strings.Builder
		for _, s := range f.servers {
			if n, waiting := f.pending[s.Name]; waiting {
				if n > 0 {
					n--
					if n == 0 {
						delete(f.pending, s.Name)
					} else {
						f.pending[s.Name] = n
					}
				}
				continue
			}
			b.WriteString(s.Name)
			b.WriteString("\n")
		}
		f.mu.Unlock()
		return shell.Result{Stdout: b.String()}, nil

	case slices.Contains(args, "--remote-send"):
		name := argAfter(args, "--servername")
		keys := argAfter(args, "--remote-send")
		s := f.visibleLocked(name)
		if s == nil {
			f.mu.Unlock()
			return noServer(name), nil
		}
		s.Keys = append(s.Keys, keys)
		onSend := f.OnSend
		f.mu.Unlock()

		if onSend != nil {
			if stderr := onSend(name, keys); stderr != "" {
				return shell.Result{Stderr: stderr}, nil
			}
		}
		if strings.Contains(keys, ":qall!") {
			f.Kill(name)
		}
		return shell.Result{}, nil

	case slices.Contains(args, "--remote-expr"):
		name := argAfter(args, "--servername")
		expr := argAfter(args, "--remote-expr")
		if f.visibleLocked(name) == nil {
			f.mu.Unlock()
			return noServer(name), nil
		}
		onExpr := f.OnExpr
		value, known := f.Exprs[expr]
		f.mu.Unlock()

		if onExpr != nil {
			stdout, stderr := onExpr(name, expr)
			return shell.Result{Stdout: stdout, Stderr: stderr}, nil
		}
		if !known {
			return shell.Result{Stderr: "E449: Invalid expression received: Send expression failed.\n"}, nil
		}
		return shell.Result{Stdout: value + "\n"}, nil

	case slices.Contains(args, "--help"):
		f.mu.Unlock()
		return shell.Result{Stdout: help}, nil
	}

	f.mu.Unlock()
	return shell.Result{}, nil
}

func (f *FakeVim) findLocked(name string) *FakeServer {
	for _, s := range f.servers {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (f *FakeVim) visibleLocked(name string) *FakeServer {
	if _, waiting := f.pending[name]; waiting {
		return nil
	}
	return f.findLocked(name)
}

func (f *FakeVim) removeLocked(name string) {
	f.servers = slices.DeleteFunc(f.servers, func(s *FakeServer) bool { return s.Name == name })
	delete(f.pending, name)
}

func noServer(name string) shell.Result {
	return shell.Result{
		Stderr:   fmt.Sprintf("E247: no registered server named \"%s\": Send failed.\n", name),
		ExitCode: 1,
	}
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// Verify interface implementation at compile time.
var _ shell.Runner = (*FakeVim)(nil)
