// Package server drives one vim client-server instance: it launches the
// editor under a unique server name, waits for it to register, and sends
// keystrokes and expressions to it.
package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/vimbot/internal/config"
	"github.com/Iron-Ham/vimbot/internal/errors"
	"github.com/Iron-Ham/vimbot/internal/logging"
	"github.com/Iron-Ham/vimbot/internal/procscan"
	"github.com/Iron-Ham/vimbot/internal/shell"
	"github.com/Iron-Ham/vimbot/internal/vim"
)

// QuitKeys leaves any mode and force-quits every window.
const QuitKeys = "<Esc>:qall!<CR>"

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultStartTimeout = 30 * time.Second

	// unbounded stands in for "no timeout" when StartTimeout is zero.
	unbounded = 100 * 365 * 24 * time.Hour

	// quitTimeout bounds the best-effort quit sent after a failed start.
	quitTimeout = 5 * time.Second
)

// errNotUp is the retry cause while the server is not yet listed.
var errNotUp = errors.New("server not listed yet")

// State is the lifecycle state of a Session.
type State int

const (
	// StateStopped means no instance is owned by the session.
	StateStopped State = iota
	// StateRunning means the instance answered a liveness check.
	StateRunning
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Config describes how a session launches and waits for its editor.
type Config struct {
	// Binary is an explicit editor binary. Empty means probe Candidates.
	Binary string
	// Candidates overrides the default probe list.
	Candidates []string

	// Vimrc and Gvimrc are passed to -u and -U. Empty means EmptyScript.
	Vimrc  string
	Gvimrc string
	// EmptyScript is the fallback config file. Empty means the built-in
	// empty script under vim.DefaultScriptDir.
	EmptyScript string

	// PollInterval is the liveness check period while starting.
	PollInterval time.Duration
	// SettleDelay is waited after the server first answers.
	SettleDelay time.Duration
	// StartTimeout bounds the liveness wait. Zero waits forever.
	StartTimeout time.Duration

	// DiscoverPID enables a best-effort pid lookup after start.
	DiscoverPID bool
}

// DefaultConfig returns the Config used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PollInterval: defaultPollInterval,
		StartTimeout: defaultStartTimeout,
		DiscoverPID:  true,
	}
}

// ConfigFrom maps the user configuration onto a session Config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Binary:       cfg.Vim.Binary,
		Candidates:   cfg.Vim.Candidates,
		Vimrc:        cfg.Vim.Vimrc,
		Gvimrc:       cfg.Vim.Gvimrc,
		PollInterval: cfg.Server.PollInterval(),
		SettleDelay:  cfg.Server.SettleDelay(),
		StartTimeout: cfg.Server.StartTimeout(),
		DiscoverPID:  cfg.Server.DiscoverPID,
	}
}

// Deps are the collaborators a session uses.
type Deps struct {
	// Runner executes the editor. Required.
	Runner shell.Runner
	// Names allocates server names. Nil means DefaultNames.
	Names *NameAllocator
	// Logger receives lifecycle events. Nil discards them.
	Logger *logging.Logger
	// PIDFinder discovers the editor pid. Nil means a ps-based finder.
	PIDFinder procscan.Finder
	// Fs holds the built-in empty script. Nil means the OS filesystem.
	Fs afero.Fs
}

// Session is one vim server owned by the caller. It is not safe for
// concurrent use, except for Name.
type Session struct {
	cfg    Config
	binary string
	vimrc  string
	gvimrc string

	runner shell.Runner
	names  *NameAllocator
	logger *logging.Logger
	finder procscan.Finder

	nameOnce sync.Once
	name     string

	state State
	pid   int
}

// New resolves the editor binary and returns a Stopped session. It fails
// with an IncompatibleBinary or NoCompatibleBinary error when no usable
// binary exists.
func New(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	s, err := newSession(cfg, deps)
	if err != nil {
		return nil, err
	}

	resolver := &vim.Resolver{Runner: s.runner, Candidates: cfg.Candidates}
	binary, err := resolver.Resolve(ctx, cfg.Binary)
	if err != nil {
		s.logger.Warn("no usable vim binary", "requested", cfg.Binary, "error", err)
		return nil, err
	}
	s.binary = binary

	if err := s.resolveConfigFiles(deps.Fs); err != nil {
		return nil, err
	}

	s.logger.Debug("session created", "binary", s.binary, "vimrc", s.vimrc, "gvimrc", s.gvimrc)
	return s, nil
}

// Attach returns a Running session bound to an existing server. The binary
// is resolved as in New and used as the client; no name is allocated and
// Start is a no-op until the session is stopped.
func Attach(ctx context.Context, cfg Config, deps Deps, name string) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("server name is required")
	}

	s, err := newSession(cfg, deps)
	if err != nil {
		return nil, err
	}

	resolver := &vim.Resolver{Runner: s.runner, Candidates: cfg.Candidates}
	binary, err := resolver.Resolve(ctx, cfg.Binary)
	if err != nil {
		return nil, err
	}
	s.binary = binary
	if err := s.resolveConfigFiles(deps.Fs); err != nil {
		return nil, err
	}

	s.nameOnce.Do(func() { s.name = name })
	s.state = StateRunning
	s.logger.WithServer(name).Debug("attached to server", "binary", s.binary)
	return s, nil
}

func newSession(cfg Config, deps Deps) (*Session, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.StartTimeout < 0 {
		cfg.StartTimeout = 0
	}

	s := &Session{
		cfg:    cfg,
		runner: deps.Runner,
		names:  deps.Names,
		logger: deps.Logger,
		finder: deps.PIDFinder,
	}
	if s.names == nil {
		s.names = DefaultNames()
	}
	if s.logger == nil {
		s.logger = logging.NopLogger()
	}
	if s.finder == nil && cfg.DiscoverPID {
		s.finder = procscan.NewPSFinder(deps.Runner)
	}
	return s, nil
}

// resolveConfigFiles fixes the -u and -U paths. The empty script is only
// materialized when one of them needs it.
func (s *Session) resolveConfigFiles(fs afero.Fs) error {
	s.vimrc, s.gvimrc = s.cfg.Vimrc, s.cfg.Gvimrc
	if s.vimrc != "" && s.gvimrc != "" {
		return nil
	}

	empty := s.cfg.EmptyScript
	if empty == "" {
		if fs == nil {
			fs = afero.NewOsFs()
		}
		path, err := vim.EnsureEmptyScript(fs, vim.DefaultScriptDir())
		if err != nil {
			return err
		}
		empty = path
	}

	if s.vimrc == "" {
		s.vimrc = empty
	}
	if s.gvimrc == "" {
		s.gvimrc = empty
	}
	return nil
}

// Name returns the server name, allocating it on first use.
func (s *Session) Name() string {
	s.nameOnce.Do(func() {
		s.name = s.names.Next()
	})
	return s.name
}

// Binary returns the resolved editor binary.
func (s *Session) Binary() string {
	return s.binary
}

// Vimrc returns the file passed to -u.
func (s *Session) Vimrc() string {
	return s.vimrc
}

// Gvimrc returns the file passed to -U.
func (s *Session) Gvimrc() string {
	return s.gvimrc
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.state
}

// PID returns the discovered process id, if any.
func (s *Session) PID() (int, bool) {
	return s.pid, s.pid > 0
}

// LaunchArgs returns the arguments Start passes to the binary.
func (s *Session) LaunchArgs() []string {
	return []string{"--servername", s.Name(), "--nofork", "-u", s.vimrc, "-U", s.gvimrc}
}

// Start launches the editor and blocks until its server name is listed.
// It is a no-op when the session is Running. A server that never appears
// yields a Timeout error and leaves the session Stopped; the same holds
// when ctx ends first. Either way a quit is sent to the launched instance.
// If ctx ends during the settle delay the session is already Running and
// the caller should Stop it.
func (s *Session) Start(ctx context.Context) error {
	if s.state == StateRunning {
		return nil
	}

	name := s.Name()
	log := s.logger.WithServer(name).WithBinary(s.binary)

	log.Info("launching vim server")
	if err := s.runner.Start(ctx, s.binary, s.LaunchArgs()...); err != nil {
		log.Error("launch failed", "error", err)
		return errors.Wrapf(err, "failed to start vim server %s", name)
	}

	began := time.Now()
	if err := s.waitUntilUp(ctx); err != nil {
		if errors.IsKind(err, errors.KindTimeout) {
			log.Warn("vim server never registered", "timeout", s.cfg.StartTimeout)
		} else {
			log.Warn("start abandoned", "error", err)
		}
		// The launched instance may still register.
		s.quitLate(name)
		return err
	}
	s.state = StateRunning
	log.Info("vim server up", "wait_ms", time.Since(began).Milliseconds())

	if err := s.settle(ctx); err != nil {
		return err
	}

	if s.cfg.DiscoverPID && s.finder != nil {
		if pid, ok := s.finder.FindPID(ctx, s.binary); ok {
			s.pid = pid
			log.Debug("discovered pid", "pid", pid)
		} else {
			log.Debug("pid not found")
		}
	}
	return nil
}

// waitUntilUp polls IsUp every PollInterval.
func (s *Session) waitUntilUp(ctx context.Context) error {
	timeout := s.cfg.StartTimeout
	if timeout == 0 {
		timeout = unbounded
	}

	err := retry.Constant(timeout, retry.WithUnits(s.cfg.PollInterval)).
		RetryWithContext(ctx, func(ctx context.Context) error {
			if s.IsUp(ctx) {
				return nil
			}
			return retry.ExpectedError(errNotUp)
		})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return errors.NewTimeoutError(fmt.Sprintf("waiting for vim server %s", s.Name()), s.cfg.StartTimeout).
		WithCause(errNotUp)
}

// settle waits SettleDelay after the server first answers.
func (s *Session) settle(ctx context.Context) error {
	if s.cfg.SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.cfg.SettleDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// quitLate asks an instance that may still register to quit.
func (s *Session) quitLate(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), quitTimeout)
	defer cancel()
	if _, err := s.runner.Run(ctx, s.binary, "--servername", name, "--remote-send", QuitKeys); err != nil {
		s.logger.WithServer(name).Debug("late quit failed", "error", err)
	}
}

// Stop asks the editor to quit. It is a no-op when the session is Stopped.
// When the quit cannot be delivered the session stays Running and the
// error is returned.
func (s *Session) Stop(ctx context.Context) error {
	if s.state == StateStopped {
		return nil
	}

	log := s.logger.WithServer(s.Name())
	if err := s.SendKeys(ctx, QuitKeys); err != nil {
		log.Warn("quit failed", "error", err)
		return err
	}

	s.pid = 0
	s.state = StateStopped
	log.Info("vim server stopped")
	return nil
}

// IsUp reports whether the server name is in the server list. Any failure
// to list servers counts as not up.
func (s *Session) IsUp(ctx context.Context) bool {
	names, err := s.ServerNames(ctx)
	if err != nil {
		return false
	}
	want := s.Name()
	for _, n := range names {
		if strings.EqualFold(n, want) {
			return true
		}
	}
	return false
}

// ServerNames returns every server the binary can see.
func (s *Session) ServerNames(ctx context.Context) ([]string, error) {
	return ListServers(ctx, s.runner, s.binary)
}

// ListServers runs binary --serverlist and returns the non-blank lines.
func ListServers(ctx context.Context, runner shell.Runner, binary string) ([]string, error) {
	res, err := runner.Run(ctx, binary, "--serverlist")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list vim servers")
	}
	return parseServerList(res.Stdout), nil
}

func parseServerList(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

// SendKeys sends keys as if typed into the editor. Anything the client
// writes to stderr is reported as an InvalidInput error.
func (s *Session) SendKeys(ctx context.Context, keys string) error {
	name := s.Name()
	res, err := s.runner.Run(ctx, s.binary, "--servername", name, "--remote-send", keys)
	if err != nil {
		return errors.Wrapf(err, "failed to send keys to %s", name)
	}
	if res.Stderr != "" {
		s.logger.WithServer(name).Debug("remote send rejected", "keys", keys, "stderr", res.Stderr)
		return errors.NewRemoteError(errors.KindInvalidInput, name, keys, res.Stderr)
	}
	return nil
}

// Evaluate evaluates expr in the editor and returns the result without its
// trailing newline. Anything the client writes to stderr is reported as an
// InvalidExpression error.
func (s *Session) Evaluate(ctx context.Context, expr string) (string, error) {
	name := s.Name()
	res, err := s.runner.Run(ctx, s.binary, "--servername", name, "--remote-expr", expr)
	if err != nil {
		return "", errors.Wrapf(err, "failed to evaluate on %s", name)
	}
	if res.Stderr != "" {
		s.logger.WithServer(name).Debug("remote expr rejected", "expr", expr, "stderr", res.Stderr)
		return "", errors.NewRemoteError(errors.KindInvalidExpression, name, expr, res.Stderr)
	}
	return strings.TrimSuffix(res.Stdout, "\n"), nil
}
