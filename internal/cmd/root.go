package cmd

import (
	"context"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/vimbot/internal/config"
	"github.com/Iron-Ham/vimbot/internal/logging"
	"github.com/Iron-Ham/vimbot/internal/server"
	"github.com/Iron-Ham/vimbot/internal/shell"
)

var rootCmd = &cobra.Command{
	Use:   "vimbot",
	Short: "Drive vim through its client-server interface",
	Long: `Vimbot launches vim instances under unique server names and drives
them with --remote-send and --remote-expr. It picks a vim binary built
with client-server support, waits for the server to register, and
reports rejected keys or expressions as errors.`,
	SilenceUsage: true,
}

// Test hooks.
var (
	newRunner = func() shell.Runner { return shell.NewExecRunner() }
	appFs     = afero.NewOsFs()
)

// names holds one allocator per prefix so a prefix never reuses a name
// within this process.
var names map[string]*server.NameAllocator

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which subcommands use for
// cancellation.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/vimbot/config.yaml)")
	flags.StringP("binary", "b", "", "vim binary to drive (default: first of vim, mvim, gvim with client-server support)")
	flags.String("vimrc", "", "file passed to -u (default: built-in empty script)")
	flags.String("gvimrc", "", "file passed to -U (default: built-in empty script)")
	flags.BoolP("verbose", "v", false, "log to stderr at debug level")
}

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"config": "config",
	"binary": "vim.binary",
	"vimrc":  "vim.vimrc",
	"gvimrc": "vim.gvimrc",
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	for flag, key := range flagKeys {
		_ = viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag))
	}

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/vimbot")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("VIMBOT")
	// Replace dots with underscores for nested keys in env vars
	// e.g., VIMBOT_SERVER_START_TIMEOUT_SECONDS for server.start_timeout_seconds
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig returns the validated configuration.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// newLogger builds the logger for a command. Without a log directory the
// CLI stays quiet unless --verbose is given.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*logging.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	switch {
	case cfg.Logging.Dir != "":
		level := cfg.Logging.Level
		if verbose {
			level = logging.LevelDebug
		}
		return logging.NewLogger(cfg.Logging.Dir, logging.ParseLevel(level))
	case verbose:
		return logging.NewWriterLogger(cmd.ErrOrStderr(), logging.LevelDebug), nil
	default:
		return logging.NopLogger(), nil
	}
}

// nameAllocator returns the process allocator for the configured prefix.
func nameAllocator(cfg *config.Config) *server.NameAllocator {
	prefix := cfg.Vim.NamePrefix
	if names == nil {
		names = make(map[string]*server.NameAllocator)
	}
	a, ok := names[prefix]
	if !ok {
		a = server.NewNameAllocator(prefix)
		names[prefix] = a
	}
	return a
}

// env bundles what a subcommand needs to drive vim.
type env struct {
	cfg    *config.Config
	logger *logging.Logger
	runner shell.Runner
}

func newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, runner: newRunner()}, nil
}

func (e *env) close() {
	_ = e.logger.Close()
}

func (e *env) deps() server.Deps {
	return server.Deps{
		Runner: e.runner,
		Names:  nameAllocator(e.cfg),
		Logger: e.logger,
		Fs:     appFs,
	}
}

// withSession runs fn against the server named by --server, or against a
// fresh session that is started first and stopped afterwards.
func (e *env) withSession(ctx context.Context, cmd *cobra.Command, scfg server.Config, fn func(*server.Session) error) error {
	if name, _ := cmd.Flags().GetString("server"); name != "" {
		s, err := server.Attach(ctx, scfg, e.deps(), name)
		if err != nil {
			return err
		}
		return fn(s)
	}

	s, err := server.New(ctx, scfg, e.deps())
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		// Canceled while settling: the server is up and ours to stop.
		if s.State() == server.StateRunning {
			_ = s.Stop(context.WithoutCancel(ctx))
		}
		return err
	}

	runErr := fn(s)
	// Stop even when ctx was canceled.
	stopErr := s.Stop(context.WithoutCancel(ctx))
	if runErr != nil {
		return runErr
	}
	return stopErr
}

// addServerFlag registers --server on commands that can target an
// existing instance.
func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("server", "s", "", "drive an existing server instead of starting one")
}
