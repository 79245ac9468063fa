// Package config handles cmdq configuration using Viper.
//
// Configuration sources (in priority order):
//  1. Environment variables (CMDQ_*)
//  2. Config file (~/.config/cmdq/config.yaml)
//  3. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/musher-dev/cmdq/internal/paths"
)

// Configuration keys.
const (
	KeyPrefix           = "runner.prefix"
	KeyShell            = "runner.shell"
	KeyDrainTimeout     = "runner.drain_timeout"
	KeyPTY              = "runner.pty"
	KeyKillOnCancel     = "runner.kill_on_cancel"
	KeyQueueCapacity    = "queue.capacity"
	KeyMaxResidual      = "stream.max_residual"
	KeyReadSize         = "stream.read_size"
	KeyEncoding         = "stream.encoding"
	KeyMaxLogLines      = "ui.max_log_lines"
	KeyHistoryEnabled   = "history.enabled"
	KeyHistoryDir       = "history.dir"
	KeyHistoryLines     = "history.lines"
	KeyHistoryRetention = "history.retention"
)

const (
	// DefaultPrefix is the command prefix used when none is configured.
	DefaultPrefix = "yt-dlp -f 233"
	// DefaultDrainTimeout bounds how long output readers may lag a finished process.
	DefaultDrainTimeout = 5 * time.Second
	// DefaultQueueCapacity is the number of pending tasks the queue holds.
	DefaultQueueCapacity = 100
	// DefaultMaxResidual is the largest unterminated line kept per stream.
	DefaultMaxResidual = 8192
	// DefaultReadSize is the pump read buffer size.
	DefaultReadSize = 4096
	// DefaultEncoding is the encoding of child process output.
	DefaultEncoding = "utf-8"
	// DefaultMaxLogLines caps the interactive log view.
	DefaultMaxLogLines = 200
	// DefaultHistoryLines caps lines recorded per session.
	DefaultHistoryLines = 10000
	// DefaultHistoryRetention is how long sessions are kept before pruning.
	DefaultHistoryRetention = 30 * 24 * time.Hour
)

// DefaultShell returns the platform shell used to run command lines.
func DefaultShell() string {
	if runtime.GOOS == "windows" {
		return "cmd /C"
	}

	return "sh -c"
}

// Config holds the cmdq configuration.
type Config struct {
	v       *viper.Viper
	path    string
	readErr error
}

// Load reads configuration from all sources. A missing config file is not
// an error; a malformed one is reported by ReadErr and otherwise ignored.
func Load() *Config {
	v := viper.New()
	setDefaults(v)

	cfg := &Config{v: v}

	if file, err := paths.ConfigFile(); err == nil {
		cfg.path = file
		v.SetConfigFile(file)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			cfg.readErr = fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	v.SetEnvPrefix("CMDQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyPrefix, DefaultPrefix)
	v.SetDefault(KeyShell, DefaultShell())
	v.SetDefault(KeyDrainTimeout, DefaultDrainTimeout)
	v.SetDefault(KeyPTY, false)
	v.SetDefault(KeyKillOnCancel, false)
	v.SetDefault(KeyQueueCapacity, DefaultQueueCapacity)
	v.SetDefault(KeyMaxResidual, DefaultMaxResidual)
	v.SetDefault(KeyReadSize, DefaultReadSize)
	v.SetDefault(KeyEncoding, DefaultEncoding)
	v.SetDefault(KeyMaxLogLines, DefaultMaxLogLines)
	v.SetDefault(KeyHistoryEnabled, true)
	v.SetDefault(KeyHistoryDir, "")
	v.SetDefault(KeyHistoryLines, DefaultHistoryLines)
	v.SetDefault(KeyHistoryRetention, DefaultHistoryRetention)
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}

	return errors.Is(err, os.ErrNotExist)
}

// ReadErr returns the error from reading the config file, if any.
func (c *Config) ReadErr() error {
	return c.readErr
}

// Path returns the config file location.
func (c *Config) Path() string {
	return c.path
}

// Get returns a configuration value.
func (c *Config) Get(key string) any {
	return c.v.Get(key)
}

// GetString returns a configuration value as string.
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt returns a configuration value as int.
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// IsKnown reports whether key is a recognised configuration key.
func IsKnown(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}

	return false
}

// Keys returns all configuration keys in sorted order.
func Keys() []string {
	keys := []string{
		KeyPrefix, KeyShell, KeyDrainTimeout, KeyPTY, KeyKillOnCancel,
		KeyQueueCapacity, KeyMaxResidual, KeyReadSize, KeyEncoding,
		KeyMaxLogLines, KeyHistoryEnabled, KeyHistoryDir, KeyHistoryLines,
		KeyHistoryRetention,
	}
	sort.Strings(keys)

	return keys
}

// Set validates, sets, and persists a configuration value.
func (c *Config) Set(key string, value any) error {
	if err := validate(key, value); err != nil {
		return err
	}

	c.v.Set(key, value)

	if c.path == "" {
		return fmt.Errorf("config file location unavailable")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := c.v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// validate rejects values that the accessors would silently coerce.
func validate(key string, value any) error {
	if !IsKnown(key) {
		return fmt.Errorf("unknown config key %q", key)
	}

	s, ok := value.(string)
	if !ok {
		return nil
	}

	switch key {
	case KeyDrainTimeout, KeyHistoryRetention:
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	case KeyQueueCapacity, KeyMaxResidual, KeyReadSize, KeyMaxLogLines, KeyHistoryLines:
		if n, err := strconv.Atoi(s); err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", key, s)
		}
	case KeyPTY, KeyKillOnCancel, KeyHistoryEnabled:
		switch strings.ToLower(s) {
		case "true", "false", "1", "0":
		default:
			return fmt.Errorf("%s must be true or false, got %q", key, s)
		}
	}

	return nil
}

// All returns all configuration as a map.
func (c *Config) All() map[string]any {
	return c.v.AllSettings()
}

// Prefix returns the default command prefix.
func (c *Config) Prefix() string {
	return strings.TrimSpace(c.GetString(KeyPrefix))
}

// Shell returns the shell argv used to run command lines. An empty result
// means command lines are split on whitespace and executed directly.
func (c *Config) Shell() []string {
	return strings.Fields(c.GetString(KeyShell))
}

// DrainTimeout returns the bound on output reader completion.
func (c *Config) DrainTimeout() time.Duration {
	return positiveDuration(c.v.GetDuration(KeyDrainTimeout), DefaultDrainTimeout)
}

// UsePTY reports whether child stdout is attached to a pseudo-terminal.
func (c *Config) UsePTY() bool {
	return c.v.GetBool(KeyPTY)
}

// KillOnCancel reports whether interrupting cmdq terminates the running task.
func (c *Config) KillOnCancel() bool {
	return c.v.GetBool(KeyKillOnCancel)
}

// QueueCapacity returns the maximum number of pending tasks.
func (c *Config) QueueCapacity() int {
	return positiveInt(c.GetInt(KeyQueueCapacity), DefaultQueueCapacity)
}

// MaxResidual returns the per-stream unterminated line bound.
func (c *Config) MaxResidual() int {
	return positiveInt(c.GetInt(KeyMaxResidual), DefaultMaxResidual)
}

// ReadSize returns the pump read buffer size.
func (c *Config) ReadSize() int {
	return positiveInt(c.GetInt(KeyReadSize), DefaultReadSize)
}

// Encoding returns the configured output encoding name.
func (c *Config) Encoding() string {
	if s := strings.TrimSpace(c.GetString(KeyEncoding)); s != "" {
		return s
	}

	return DefaultEncoding
}

// MaxLogLines returns the interactive log view cap.
func (c *Config) MaxLogLines() int {
	return positiveInt(c.GetInt(KeyMaxLogLines), DefaultMaxLogLines)
}

// HistoryEnabled reports whether sessions are recorded.
func (c *Config) HistoryEnabled() bool {
	return c.v.GetBool(KeyHistoryEnabled)
}

// HistoryDir returns the transcript directory, defaulting to the state dir.
func (c *Config) HistoryDir() string {
	if dir := strings.TrimSpace(c.GetString(KeyHistoryDir)); dir != "" {
		return dir
	}

	dir, err := paths.HistoryDir()
	if err != nil {
		return ""
	}

	return dir
}

// HistoryLines returns the per-session line cap.
func (c *Config) HistoryLines() int {
	return positiveInt(c.GetInt(KeyHistoryLines), DefaultHistoryLines)
}

// HistoryRetention returns how long sessions are kept.
func (c *Config) HistoryRetention() time.Duration {
	return positiveDuration(c.v.GetDuration(KeyHistoryRetention), DefaultHistoryRetention)
}

func positiveInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}

	return v
}

func positiveDuration(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}

	return v
}
