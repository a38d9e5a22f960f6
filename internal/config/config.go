package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/vimbot/internal/vim"
)

// Config represents the complete vimbot configuration
type Config struct {
	Vim     VimConfig     `mapstructure:"vim" yaml:"vim"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// VimConfig controls which editor binary is used and how it is launched
type VimConfig struct {
	// Binary is an explicit editor binary. Empty means probe Candidates.
	Binary string `mapstructure:"binary" yaml:"binary"`
	// Candidates are probed in order when Binary is empty
	Candidates []string `mapstructure:"candidates" yaml:"candidates"`
	// Vimrc is passed to -u. Empty means the built-in empty script.
	Vimrc string `mapstructure:"vimrc" yaml:"vimrc"`
	// Gvimrc is passed to -U. Empty means the built-in empty script.
	Gvimrc string `mapstructure:"gvimrc" yaml:"gvimrc"`
	// NamePrefix is the stem of generated server names (default: "VIMBOT")
	NamePrefix string `mapstructure:"name_prefix" yaml:"name_prefix"`
}

// ServerConfig controls server lifecycle timing
type ServerConfig struct {
	// PollIntervalMs is how often liveness is checked while starting (default: 250)
	PollIntervalMs int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	// SettleDelayMs is an extra wait after the server first answers (default: 0)
	SettleDelayMs int `mapstructure:"settle_delay_ms" yaml:"settle_delay_ms"`
	// StartTimeoutSeconds bounds the liveness wait; 0 waits forever (default: 30)
	StartTimeoutSeconds int `mapstructure:"start_timeout_seconds" yaml:"start_timeout_seconds"`
	// DiscoverPID enables best-effort pid lookup after start (default: true)
	DiscoverPID bool `mapstructure:"discover_pid" yaml:"discover_pid"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where vimbot.log is written. When empty the CLI discards logs
	// unless --verbose sends them to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Vim: VimConfig{
			Binary:     "",
			Candidates: append([]string(nil), vim.DefaultBinaries...),
			NamePrefix: "VIMBOT",
		},
		Server: ServerConfig{
			PollIntervalMs:      250,
			SettleDelayMs:       0,
			StartTimeoutSeconds: 30,
			DiscoverPID:         true,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
	}
}

// PollInterval returns the poll interval as a time.Duration
func (c *ServerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SettleDelay returns the settle delay as a time.Duration
func (c *ServerConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// StartTimeout returns the start timeout as a time.Duration (0 means no limit)
func (c *ServerConfig) StartTimeout() time.Duration {
	return time.Duration(c.StartTimeoutSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Vim defaults
	viper.SetDefault("vim.binary", defaults.Vim.Binary)
	viper.SetDefault("vim.candidates", defaults.Vim.Candidates)
	viper.SetDefault("vim.vimrc", defaults.Vim.Vimrc)
	viper.SetDefault("vim.gvimrc", defaults.Vim.Gvimrc)
	viper.SetDefault("vim.name_prefix", defaults.Vim.NamePrefix)

	// Server defaults
	viper.SetDefault("server.poll_interval_ms", defaults.Server.PollIntervalMs)
	viper.SetDefault("server.settle_delay_ms", defaults.Server.SettleDelayMs)
	viper.SetDefault("server.start_timeout_seconds", defaults.Server.StartTimeoutSeconds)
	viper.SetDefault("server.discover_pid", defaults.Server.DiscoverPID)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load for a specific viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "vimbot")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vimbot"
	}
	return filepath.Join(home, ".config", "vimbot")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
