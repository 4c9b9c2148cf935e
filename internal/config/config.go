// ABOUTME: Runtime configuration for the media player binaries
// ABOUTME: Layers defaults, a YAML config file, RESONATE_MEDIA_* env vars and flags through viper
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/Resonate-Protocol/resonate-media/pkg/driver"
)

// Name is used for the config directory, file and env prefix
const Name = "resonate-media"

// Config holds every setting the player reads
type Config struct {
	Driver         string
	BufferMs       int
	WorkerInterval int
	LogLevel       string
	TUI            bool
	Loop           bool
	Volume         float64
	Remote         Remote
}

// Remote configures the WebSocket control endpoint
type Remote struct {
	Enabled bool
	Port    int
	MDNS    bool
	Name    string
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Driver:         driver.BackendAuto,
		BufferMs:       int(driver.DefaultBufferDuration / time.Millisecond),
		WorkerInterval: int(driver.DefaultWorkerInterval / time.Millisecond),
		LogLevel:       "info",
		TUI:            false,
		Volume:         1.0,
		Remote: Remote{
			Port: 8928,
			MDNS: true,
		},
	}
}

// SetDefaults registers the defaults on v
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("driver", d.Driver)
	v.SetDefault("buffer_ms", d.BufferMs)
	v.SetDefault("worker_interval_ms", d.WorkerInterval)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("tui", d.TUI)
	v.SetDefault("loop", d.Loop)
	v.SetDefault("volume", d.Volume)
	v.SetDefault("remote.enabled", d.Remote.Enabled)
	v.SetDefault("remote.port", d.Remote.Port)
	v.SetDefault("remote.mdns", d.Remote.MDNS)
	v.SetDefault("remote.name", d.Remote.Name)
}

// ConfigDirs returns the directories searched for config.yaml, most specific first
func ConfigDirs() []string {
	var dirs []string
	if c := os.Getenv("RESONATE_MEDIA_CONFIG_HOME"); c != "" {
		dirs = append(dirs, c)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append(dirs, filepath.Join(c, Name))
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", Name))
	}
	return dirs
}

// Prepare sets up v to read config.yaml from dirs and RESONATE_MEDIA_* env vars
func Prepare(v *viper.Viper, dirs []string) {
	SetDefaults(v)
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix(strings.ReplaceAll(Name, "-", "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the config file if there is one and returns the validated settings
func Load(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if used := v.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
	}

	cfg := Config{
		Driver:         v.GetString("driver"),
		BufferMs:       v.GetInt("buffer_ms"),
		WorkerInterval: v.GetInt("worker_interval_ms"),
		LogLevel:       v.GetString("log_level"),
		TUI:            v.GetBool("tui"),
		Loop:           v.GetBool("loop"),
		Volume:         v.GetFloat64("volume"),
		Remote: Remote{
			Enabled: v.GetBool("remote.enabled"),
			Port:    v.GetInt("remote.port"),
			MDNS:    v.GetBool("remote.mdns"),
			Name:    v.GetString("remote.name"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enumerations
func (c Config) Validate() error {
	switch strings.ToLower(c.Driver) {
	case driver.BackendAuto, driver.BackendOto, driver.BackendMalgo, driver.BackendSilent:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.BufferMs < 50 || c.BufferMs > 10000 {
		return fmt.Errorf("buffer_ms must be between 50 and 10000, got %d", c.BufferMs)
	}
	if c.WorkerInterval < 1 || c.WorkerInterval > 1000 {
		return fmt.Errorf("worker_interval_ms must be between 1 and 1000, got %d", c.WorkerInterval)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be between 0 and 1, got %v", c.Volume)
	}
	if c.Remote.Enabled && (c.Remote.Port < 1 || c.Remote.Port > 65535) {
		return fmt.Errorf("remote.port must be between 1 and 65535, got %d", c.Remote.Port)
	}
	return nil
}

// BufferDuration returns BufferMs as a duration
func (c Config) BufferDuration() time.Duration {
	return time.Duration(c.BufferMs) * time.Millisecond
}

// WorkerIntervalDuration returns WorkerInterval as a duration
func (c Config) WorkerIntervalDuration() time.Duration {
	return time.Duration(c.WorkerInterval) * time.Millisecond
}

// Level returns the parsed log level, info if it does not parse
func (c Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// DriverOptions converts the buffering settings to driver options
func (c Config) DriverOptions() []driver.Option {
	return []driver.Option{
		driver.WithBufferDuration(c.BufferDuration()),
		driver.WithWorkerInterval(c.WorkerIntervalDuration()),
	}
}
