package server

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/vimbot/internal/config"
	"github.com/Iron-Ham/vimbot/internal/errors"
	"github.com/Iron-Ham/vimbot/internal/testutil"
	"github.com/Iron-Ham/vimbot/internal/vim"
)

type stubFinder struct {
	pid   int
	calls int
}

func (f *stubFinder) FindPID(_ context.Context, _ string) (int, bool) {
	f.calls++
	return f.pid, f.pid > 0
}

type fixture struct {
	fake   *testutil.FakeVim
	names  *NameAllocator
	finder *stubFinder
	cfg    Config
}

func newFixture() *fixture {
	return &fixture{
		fake:   testutil.NewFakeVim("vim", "gvim"),
		names:  NewNameAllocator("TEST"),
		finder: &stubFinder{pid: 4242},
		cfg: Config{
			EmptyScript:  "/tmp/empty.vim",
			PollInterval: 5 * time.Millisecond,
			StartTimeout: 2 * time.Second,
			DiscoverPID:  true,
		},
	}
}

func (f *fixture) deps() Deps {
	return Deps{Runner: f.fake, Names: f.names, PIDFinder: f.finder}
}

func (f *fixture) session(t *testing.T) *Session {
	t.Helper()
	s, err := New(context.Background(), f.cfg, f.deps())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateStopped, "stopped"},
		{StateRunning, "running"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("resolves first default", func(t *testing.T) {
		f := newFixture()
		s := f.session(t)
		if s.Binary() != "vim" {
			t.Errorf("Binary() = %q, want vim", s.Binary())
		}
		if s.State() != StateStopped {
			t.Errorf("State() = %v, want stopped", s.State())
		}
		if _, ok := s.PID(); ok {
			t.Error("PID() should be unset before Start")
		}
	})

	t.Run("explicit incompatible binary", func(t *testing.T) {
		f := newFixture()
		f.fake.Incapable("fake_vim_without_server_mode")
		f.cfg.Binary = "fake_vim_without_server_mode"

		_, err := New(context.Background(), f.cfg, f.deps())
		if !errors.Is(err, errors.ErrIncompatibleBinary) {
			t.Errorf("New() error = %v, want incompatible binary", err)
		}
		if f.names.Issued() != 0 {
			t.Error("a failed New should not allocate a name")
		}
	})

	t.Run("no compatible default", func(t *testing.T) {
		f := newFixture()
		f.fake = testutil.NewFakeVim()
		f.fake.Incapable("vim", "mvim", "gvim")

		_, err := New(context.Background(), f.cfg, f.deps())
		if !errors.Is(err, errors.ErrNoCompatibleBinary) {
			t.Errorf("New() error = %v, want no compatible binary", err)
		}
	})

	t.Run("requires a runner", func(t *testing.T) {
		if _, err := New(context.Background(), DefaultConfig(), Deps{}); err == nil {
			t.Error("New() without runner should fail")
		}
	})

	t.Run("config files default to the empty script", func(t *testing.T) {
		f := newFixture()
		f.cfg.Gvimrc = "/home/me/.gvimrc"
		s := f.session(t)

		if s.Vimrc() != "/tmp/empty.vim" {
			t.Errorf("Vimrc() = %q, want empty script", s.Vimrc())
		}
		if s.Gvimrc() != "/home/me/.gvimrc" {
			t.Errorf("Gvimrc() = %q, want explicit file", s.Gvimrc())
		}
	})

	t.Run("materializes the built-in empty script", func(t *testing.T) {
		f := newFixture()
		f.cfg.EmptyScript = ""
		fs := afero.NewMemMapFs()
		deps := f.deps()
		deps.Fs = fs

		s, err := New(context.Background(), f.cfg, deps)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		want := filepath.Join(vim.DefaultScriptDir(), vim.EmptyScriptName)
		if s.Vimrc() != want || s.Gvimrc() != want {
			t.Errorf("config files = %q, %q; want %q", s.Vimrc(), s.Gvimrc(), want)
		}
		if ok, _ := afero.Exists(fs, want); !ok {
			t.Error("empty script was not written")
		}
	})
}

func TestSession_Name(t *testing.T) {
	f := newFixture()
	a := f.session(t)
	b := f.session(t)

	if f.names.Issued() != 0 {
		t.Fatalf("names allocated before first use: %d", f.names.Issued())
	}

	first := a.Name()
	if first != "TEST_1" {
		t.Errorf("Name() = %q, want TEST_1", first)
	}
	if a.Name() != first {
		t.Error("Name() changed between calls")
	}
	if b.Name() == first {
		t.Errorf("two sessions share name %q", first)
	}
}

func TestSession_Start(t *testing.T) {
	f := newFixture()
	f.fake.UpAfter = 3
	s := f.session(t)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if s.State() != StateRunning {
		t.Errorf("State() = %v, want running", s.State())
	}
	if pid, ok := s.PID(); !ok || pid != 4242 {
		t.Errorf("PID() = %d, %v; want 4242, true", pid, ok)
	}
	if !s.IsUp(context.Background()) {
		t.Error("IsUp() = false after Start")
	}

	launches := f.fake.CallsTo("--nofork")
	if len(launches) != 1 {
		t.Fatalf("got %d launches, want 1", len(launches))
	}
	want := []string{"--servername", s.Name(), "--nofork", "-u", "/tmp/empty.vim", "-U", "/tmp/empty.vim"}
	if !launches[0].Detached || launches[0].Binary != "vim" || !slices.Equal(launches[0].Args, want) {
		t.Errorf("launch = %+v, want detached vim %v", launches[0], want)
	}

	if polls := len(f.fake.CallsTo("--serverlist")); polls < 4 {
		t.Errorf("got %d liveness polls, want at least 4", polls)
	}
}

func TestSession_StartIsIdempotent(t *testing.T) {
	f := newFixture()
	s := f.session(t)

	for range 2 {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	}
	if n := len(f.fake.CallsTo("--nofork")); n != 1 {
		t.Errorf("got %d launches, want 1", n)
	}
}

func TestSession_StartWithoutPIDDiscovery(t *testing.T) {
	f := newFixture()
	f.cfg.DiscoverPID = false
	s := f.session(t)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.finder.calls != 0 {
		t.Errorf("finder called %d times, want 0", f.finder.calls)
	}
	if _, ok := s.PID(); ok {
		t.Error("PID() should be unset")
	}
}

func TestSession_StartPIDMiss(t *testing.T) {
	f := newFixture()
	f.finder.pid = 0
	s := f.session(t)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.State() != StateRunning {
		t.Error("a pid miss should not affect the state")
	}
}

func TestSession_StartSettles(t *testing.T) {
	f := newFixture()
	f.cfg.SettleDelay = 30 * time.Millisecond
	s := f.session(t)

	began := time.Now()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if elapsed := time.Since(began); elapsed < 30*time.Millisecond {
		t.Errorf("Start() returned after %v, want at least the settle delay", elapsed)
	}
}

func TestSession_StartTimeout(t *testing.T) {
	f := newFixture()
	f.fake.UpAfter = -1
	f.cfg.StartTimeout = 40 * time.Millisecond
	s := f.session(t)

	err := s.Start(context.Background())
	if !errors.IsKind(err, errors.KindTimeout) {
		t.Fatalf("Start() error = %v, want timeout", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if n := len(f.fake.CallsTo("--remote-send")); n != 1 {
		t.Errorf("got %d quit attempts, want 1", n)
	}
}

func TestSession_StartCanceled(t *testing.T) {
	f := newFixture()
	f.fake.UpAfter = -1
	f.cfg.StartTimeout = 0
	s := f.session(t)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	err := s.Start(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start() error = %v, want context deadline", err)
	}
	if errors.IsKind(err, errors.KindTimeout) {
		t.Error("cancellation should not be reported as a start timeout")
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	quits := f.fake.CallsTo("--remote-send")
	if len(quits) != 1 {
		t.Fatalf("got %d quit attempts, want 1", len(quits))
	}
	if !slices.Contains(quits[0].Args, QuitKeys) {
		t.Errorf("quit args = %v, want %q", quits[0].Args, QuitKeys)
	}
}

func TestSession_StartCanceledBeforeRegistering(t *testing.T) {
	f := newFixture()
	f.fake.UpAfter = 1000
	s := f.session(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := s.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start() error = %v, want context deadline", err)
	}

	// Stop is a no-op from here, so the quit has to go out during Start.
	if n := len(f.fake.CallsTo("--remote-send")); n != 1 {
		t.Errorf("got %d quit attempts, want 1", n)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on a stopped session = %v, want nil", err)
	}
}

func TestSession_StartCanceledWhileSettling(t *testing.T) {
	f := newFixture()
	f.cfg.SettleDelay = time.Minute
	s := f.session(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := s.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start() error = %v, want context deadline", err)
	}
	if s.State() != StateRunning {
		t.Fatalf("State() = %v, want running", s.State())
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if names := f.fake.ServerNames(); len(names) != 0 {
		t.Errorf("servers after Stop = %v, want none", names)
	}
}

func TestSession_StartLaunchFailure(t *testing.T) {
	f := newFixture()
	f.fake.StartErr = errors.New("no display")
	s := f.session(t)

	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected error")
	}
	if !errors.Is(err, f.fake.StartErr) {
		t.Errorf("Start() error = %v, want wrapped launch error", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
}

func TestSession_Stop(t *testing.T) {
	f := newFixture()
	s := f.session(t)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	name := s.Name()

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	if _, ok := s.PID(); ok {
		t.Error("PID() should be cleared after Stop")
	}
	if slices.Contains(f.fake.ServerNames(), name) {
		t.Errorf("server %s still listed after Stop", name)
	}
	if s.IsUp(ctx) {
		t.Error("IsUp() = true after Stop")
	}

	sends := f.fake.CallsTo("--remote-send")
	if len(sends) != 1 || sends[0].Args[len(sends[0].Args)-1] != QuitKeys {
		t.Errorf("sends = %+v, want one %q", sends, QuitKeys)
	}

	// A stopped session can start again under the same name.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if s.Name() != name {
		t.Errorf("Name() = %q after restart, want %q", s.Name(), name)
	}
}

func TestSession_StopWithoutStart(t *testing.T) {
	f := newFixture()
	s := f.session(t)
	before := len(f.fake.Calls())

	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if len(f.fake.Calls()) != before {
		t.Error("Stop() on a stopped session ran a command")
	}
	if f.names.Issued() != 0 {
		t.Error("Stop() on a fresh session allocated a name")
	}
}

func TestSession_StopFailureKeepsRunning(t *testing.T) {
	f := newFixture()
	s := f.session(t)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.fake.OnSend = func(_, _ string) string { return "E15: cannot quit\n" }

	err := s.Stop(ctx)
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("Stop() error = %v, want invalid input", err)
	}
	if s.State() != StateRunning {
		t.Errorf("State() = %v, want running", s.State())
	}
	if _, ok := s.PID(); !ok {
		t.Error("PID() should survive a failed Stop")
	}
}

func TestSession_SendKeys(t *testing.T) {
	f := newFixture()
	s := f.session(t)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	keys := `ihello "world" 100%<Esc>`
	if err := s.SendKeys(ctx, keys); err != nil {
		t.Fatalf("SendKeys() error = %v", err)
	}
	srv, ok := f.fake.Server(s.Name())
	if !ok || !slices.Equal(srv.Keys, []string{keys}) {
		t.Errorf("server keys = %v, want [%q]", srv.Keys, keys)
	}

	f.fake.OnSend = func(_, keys string) string { return "E475: Invalid argument: " + keys + "\n" }
	err := s.SendKeys(ctx, "<bogus")
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("SendKeys() error = %v, want invalid input", err)
	}
	var re *errors.RemoteError
	if !errors.As(err, &re) || re.Input != "<bogus" || re.Server != s.Name() {
		t.Errorf("RemoteError = %+v", re)
	}
}

func TestSession_SendKeysToMissingServer(t *testing.T) {
	f := newFixture()
	s := f.session(t)

	err := s.SendKeys(context.Background(), "ix")
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("SendKeys() error = %v, want invalid input", err)
	}
}

func TestSession_Evaluate(t *testing.T) {
	f := newFixture()
	s := f.session(t)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	tests := []struct {
		name   string
		stdout string
		stderr string
		want   string
		kind   errors.Kind
	}{
		{name: "strips one newline", stdout: "2\n", want: "2"},
		{name: "keeps inner newline", stdout: "a\n\n", want: "a\n"},
		{name: "no newline", stdout: "abc", want: "abc"},
		{name: "empty result", stdout: "\n", want: ""},
		{name: "stderr is an error", stdout: "", stderr: "E15: Invalid expression\n", kind: errors.KindInvalidExpression},
		{name: "stderr wins over stdout", stdout: "0\n", stderr: "E121\n", kind: errors.KindInvalidExpression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.fake.OnExpr = func(_, _ string) (string, string) { return tt.stdout, tt.stderr }

			got, err := s.Evaluate(ctx, "expr")
			if tt.kind != errors.KindUnknown {
				if errors.KindOf(err) != tt.kind {
					t.Errorf("Evaluate() error = %v, want %v", err, tt.kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSession_EvaluateRoundTrip(t *testing.T) {
	f := newFixture()
	f.fake.Exprs[`"a\"b" . '%'`] = `a"b%`
	s := f.session(t)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got, err := s.Evaluate(ctx, `"a\"b" . '%'`)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got != `a"b%` {
		t.Errorf("Evaluate() = %q", got)
	}
}

func TestSession_ServerNames(t *testing.T) {
	f := newFixture()
	f.fake.AddServer("GVIM")
	s := f.session(t)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	names, err := s.ServerNames(ctx)
	if err != nil {
		t.Fatalf("ServerNames() error = %v", err)
	}
	want := []string{"GVIM", s.Name()}
	if !slices.Equal(names, want) {
		t.Errorf("ServerNames() = %v, want %v", names, want)
	}
}

func TestParseServerList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"unix", "VIMBOT_1\nVIMBOT_2\n", []string{"VIMBOT_1", "VIMBOT_2"}},
		{"windows", "GVIM\r\nVIMBOT_3\r\n", []string{"GVIM", "VIMBOT_3"}},
		{"blank lines", "\n\nA\n  \nB", []string{"A", "B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseServerList(tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("parseServerList() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAttach(t *testing.T) {
	f := newFixture()
	f.fake.AddServer("EXISTING")
	f.fake.Exprs["1 + 1"] = "2"
	ctx := context.Background()

	s, err := Attach(ctx, f.cfg, f.deps(), "EXISTING")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if s.Name() != "EXISTING" || s.State() != StateRunning {
		t.Errorf("Attach() = %s/%v, want EXISTING/running", s.Name(), s.State())
	}
	if f.names.Issued() != 0 {
		t.Error("Attach() allocated a name")
	}

	got, err := s.Evaluate(ctx, "1 + 1")
	if err != nil || got != "2" {
		t.Errorf("Evaluate() = %q, %v", got, err)
	}

	if err := s.Start(ctx); err != nil {
		t.Errorf("Start() on attached session error = %v", err)
	}
	if n := len(f.fake.CallsTo("--nofork")); n != 0 {
		t.Errorf("attached session launched %d instances", n)
	}

	if _, err := Attach(ctx, f.cfg, f.deps(), ""); err == nil {
		t.Error("Attach() with empty name should fail")
	}
}

func TestConfigFrom(t *testing.T) {
	c := config.Default()
	c.Vim.Binary = "gvim"
	c.Vim.Vimrc = "/a.vim"
	c.Server.SettleDelayMs = 100
	c.Server.StartTimeoutSeconds = 0

	got := ConfigFrom(c)
	if got.Binary != "gvim" || got.Vimrc != "/a.vim" {
		t.Errorf("ConfigFrom() = %+v", got)
	}
	if got.PollInterval != 250*time.Millisecond || got.SettleDelay != 100*time.Millisecond {
		t.Errorf("durations = %v, %v", got.PollInterval, got.SettleDelay)
	}
	if got.StartTimeout != 0 || !got.DiscoverPID {
		t.Errorf("StartTimeout = %v, DiscoverPID = %v", got.StartTimeout, got.DiscoverPID)
	}
}
