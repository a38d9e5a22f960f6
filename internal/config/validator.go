package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError describes one invalid config value.
type ValidationError struct {
	Field   string // dotted key, e.g. "server.poll_interval_ms"
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is every problem found in one pass over a config.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}

	lines := make([]string, 0, len(e)+1)
	lines = append(lines, fmt.Sprintf("%d validation errors:", len(e)))
	for i, err := range e {
		lines = append(lines, fmt.Sprintf("  %d. %s", i+1, err))
	}
	return strings.Join(lines, "\n") + "\n"
}

// Vim upper-cases server names, so a prefix with lower-case letters would
// never match the names it produced.
var namePrefixRegex = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// ValidLogLevels returns the accepted values of logging.level.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// problems accumulates ValidationErrors.
type problems []ValidationError

func (p *problems) add(field string, value any, format string, args ...any) {
	*p = append(*p, ValidationError{Field: field, Value: value, Message: fmt.Sprintf(format, args...)})
}

// Validate reports every invalid value in c. A nil result means c is usable.
func (c *Config) Validate() []ValidationError {
	var p problems
	c.validateVim(&p)
	c.validateServer(&p)
	c.validateLogging(&p)
	return p
}

func (c *Config) validateVim(p *problems) {
	if c.Vim.Binary == "" && len(c.Vim.Candidates) == 0 {
		p.add("vim.candidates", c.Vim.Candidates, "must list at least one binary when vim.binary is empty")
	}
	for i, cand := range c.Vim.Candidates {
		if strings.TrimSpace(cand) == "" {
			p.add(fmt.Sprintf("vim.candidates[%d]", i), cand, "must not be empty")
		}
	}
	if !namePrefixRegex.MatchString(c.Vim.NamePrefix) {
		p.add("vim.name_prefix", c.Vim.NamePrefix, "must start with an upper-case letter and contain only A-Z, 0-9 and _")
	}
}

func (c *Config) validateServer(p *problems) {
	s := c.Server
	if s.PollIntervalMs < 10 || s.PollIntervalMs > 60000 {
		p.add("server.poll_interval_ms", s.PollIntervalMs, "must be between %d and %d", 10, 60000)
	}
	if s.SettleDelayMs < 0 {
		p.add("server.settle_delay_ms", s.SettleDelayMs, "must be non-negative")
	}
	if s.StartTimeoutSeconds < 0 {
		p.add("server.start_timeout_seconds", s.StartTimeoutSeconds, "must be non-negative (0 disables the limit)")
	}
}

func (c *Config) validateLogging(p *problems) {
	level := strings.ToLower(c.Logging.Level)
	if level != "" && !slices.Contains(ValidLogLevels(), level) {
		p.add("logging.level", c.Logging.Level, "must be one of: %s", strings.Join(ValidLogLevels(), ", "))
	}
}
