/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Configuration for akaylee-logcat. Values come from built-in defaults, an
optional TOML config file, LOGCAT_* environment variables and command-line flags, in
increasing order of precedence. Provides validation and a default config file writer.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kleascm/akaylee-logcat/pkg/render"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (LOGCAT_ADB_PATH, ...)
const EnvPrefix = "LOGCAT"

// DefaultFileName is used by `config init` when no path is given
const DefaultFileName = "akaylee-logcat.toml"

// Config is the complete runtime configuration
type Config struct {
	ADB      ADBConfig      `mapstructure:"adb"`
	Process  ProcessConfig  `mapstructure:"process"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Render   RenderConfig   `mapstructure:"render"`
	Log      LogConfig      `mapstructure:"log"`
	Stats    StatsConfig    `mapstructure:"stats"`
}

// ADBConfig locates the adb tool and bounds one-shot calls
type ADBConfig struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProcessConfig controls process table snapshots
type ProcessConfig struct {
	// PSArgs are appended to `shell ps`; older devices need none, newer ones may need -A
	PSArgs []string `mapstructure:"ps_args"`
}

// ResolverConfig controls the PID to package cache
type ResolverConfig struct {
	RetryAfter time.Duration `mapstructure:"retry_after"`
}

// StreamConfig controls delivery from sessions to the output
type StreamConfig struct {
	Buffer     int  `mapstructure:"buffer"`
	DropOnFull bool `mapstructure:"drop_on_full"`
}

// RenderConfig selects the record output format
type RenderConfig struct {
	Format string `mapstructure:"format"`
}

// LogConfig configures the diagnostic logger
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Dir      string `mapstructure:"dir"`
	MaxFiles int    `mapstructure:"max_files"`
	MaxSize  int64  `mapstructure:"max_size"`
	Compress bool   `mapstructure:"compress"`

	Syslog SyslogConfig `mapstructure:"syslog"`
}

// SyslogConfig mirrors diagnostics to syslog. An empty Network dials the
// local daemon.
type SyslogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Network string `mapstructure:"network"`
	Address string `mapstructure:"address"`
}

// StatsConfig enables per-session statistics files. An empty Dir disables them.
type StatsConfig struct {
	Dir string `mapstructure:"dir"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		ADB: ADBConfig{
			Path:    "adb",
			Timeout: 10 * time.Second,
		},
		Process: ProcessConfig{
			PSArgs: []string{},
		},
		Resolver: ResolverConfig{
			RetryAfter: 5 * time.Second,
		},
		Stream: StreamConfig{
			Buffer:     1024,
			DropOnFull: true,
		},
		Render: RenderConfig{
			Format: render.FormatStyled,
		},
		Log: LogConfig{
			Level:    "info",
			Format:   "custom",
			Dir:      "./logs",
			MaxFiles: 10,
			MaxSize:  100 * 1024 * 1024,
			Compress: false,
		},
		Stats: StatsConfig{
			Dir: "",
		},
	}
}

// settings flattens cfg into dotted viper keys. Durations are kept as
// strings so they read naturally in TOML.
func (c Config) settings() map[string]interface{} {
	return map[string]interface{}{
		"adb.path":             c.ADB.Path,
		"adb.timeout":          c.ADB.Timeout.String(),
		"process.ps_args":      c.Process.PSArgs,
		"resolver.retry_after": c.Resolver.RetryAfter.String(),
		"stream.buffer":        c.Stream.Buffer,
		"stream.drop_on_full":  c.Stream.DropOnFull,
		"render.format":        c.Render.Format,
		"log.level":            c.Log.Level,
		"log.format":           c.Log.Format,
		"log.dir":              c.Log.Dir,
		"log.max_files":        c.Log.MaxFiles,
		"log.max_size":         c.Log.MaxSize,
		"log.compress":         c.Log.Compress,
		"log.syslog.enabled":   c.Log.Syslog.Enabled,
		"log.syslog.network":   c.Log.Syslog.Network,
		"log.syslog.address":   c.Log.Syslog.Address,
		"stats.dir":            c.Stats.Dir,
	}
}

// Keys lists every configuration key, sorted
func Keys() []string {
	settings := Defaults().settings()
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// SetDefaults registers defaults and the environment mapping on v
func SetDefaults(v *viper.Viper) {
	for key, value := range Defaults().settings() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the config file named by the "config" key, if any, and decodes
// every source into a validated Config
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the Config for invalid or missing values
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ADB.Path) == "" {
		errs = append(errs, fmt.Errorf("adb.path must not be empty"))
	}
	if c.ADB.Timeout < 0 {
		errs = append(errs, fmt.Errorf("adb.timeout must not be negative"))
	}
	if c.Resolver.RetryAfter < 0 {
		errs = append(errs, fmt.Errorf("resolver.retry_after must not be negative"))
	}
	if c.Stream.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("stream.buffer must be positive"))
	}
	if !slices.Contains(render.Formats(), c.Render.Format) {
		errs = append(errs, fmt.Errorf("unsupported render format: %s", c.Render.Format))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		errs = append(errs, fmt.Errorf("unsupported log level: %s", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text", "custom":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format: %s", c.Log.Format))
	}
	if c.Log.Dir != "" {
		if c.Log.MaxFiles <= 0 {
			errs = append(errs, fmt.Errorf("log.max_files must be positive"))
		}
		if c.Log.MaxSize <= 0 {
			errs = append(errs, fmt.Errorf("log.max_size must be positive"))
		}
	}
	if c.Log.Syslog.Enabled {
		switch c.Log.Syslog.Network {
		case "":
		case "udp", "tcp", "unix", "unixgram":
			if c.Log.Syslog.Address == "" {
				errs = append(errs, fmt.Errorf("log.syslog.address is required with network %s", c.Log.Syslog.Network))
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported log.syslog.network: %s", c.Log.Syslog.Network))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Document renders cfg as a TOML document
func (c Config) Document() ([]byte, error) {
	doc := make(map[string]interface{})
	for key, value := range c.settings() {
		parts := strings.Split(key, ".")
		table := doc
		for _, part := range parts[:len(parts)-1] {
			next, ok := table[part].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				table[part] = next
			}
			table = next
		}
		table[parts[len(parts)-1]] = value
	}
	data, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// WriteDefault writes the default configuration to path. An existing file is
// never overwritten.
func WriteDefault(path string) error {
	if strings.TrimSpace(path) == "" {
		path = DefaultFileName
	}
	data, err := Defaults().Document()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := "# akaylee-logcat configuration\n# Every key can be overridden with LOGCAT_<SECTION>_<KEY> or a flag.\n\n"
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
