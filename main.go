// ABOUTME: Entry point for the resonate-media player
// ABOUTME: Parses flags and config, then plays files, URLs or a test tone
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Resonate-Protocol/resonate-media/internal/app"
	"github.com/Resonate-Protocol/resonate-media/internal/config"
	"github.com/Resonate-Protocol/resonate-media/internal/version"
)

var (
	configFile   string
	logFile      string
	toneDuration time.Duration

	rootCmd = &cobra.Command{
		Use:           "resonate-media [FILE|URL...]",
		Short:         "Play audio and video in sync",
		Long:          "Plays MP3, FLAC and Ogg Opus files or streams, keeping audio locked to a master clock.\nWith no arguments a test tone is played.",
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          run,
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "config file (default $XDG_CONFIG_HOME/resonate-media/config.yaml)")
	flags.StringVar(&logFile, "log-file", "", "write logs to this file (default stderr, or resonate-media.log with --tui)")
	flags.DurationVar(&toneDuration, "tone", 10*time.Second, "length of the test tone played without inputs")
	flags.String("driver", "", "audio backend: auto, oto, malgo or silent")
	flags.Int("buffer-ms", 0, "audio buffered ahead per player in milliseconds")
	flags.Int("worker-interval-ms", 0, "audio worker service interval in milliseconds")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.Bool("tui", false, "show the terminal UI")
	flags.Bool("loop", false, "repeat each source")
	flags.Float64("volume", 1, "playback volume 0..1")
	flags.Bool("remote", false, "enable the WebSocket remote control")
	flags.Int("remote-port", 0, "remote control port")
	flags.Bool("mdns", true, "advertise the remote control over mDNS")
	flags.String("name", "", "name advertised to remote clients")
}

// flagKeys maps viper keys to the flags that override them
var flagKeys = map[string]string{
	"driver":             "driver",
	"buffer_ms":          "buffer-ms",
	"worker_interval_ms": "worker-interval-ms",
	"log_level":          "log-level",
	"tui":                "tui",
	"loop":               "loop",
	"volume":             "volume",
	"remote.enabled":     "remote",
	"remote.port":        "remote-port",
	"remote.mdns":        "mdns",
	"remote.name":        "name",
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := viper.New()
	config.Prepare(v, config.ConfigDirs())
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	for key, name := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(v)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func setupLogging(cfg config.Config) (io.Closer, error) {
	log.SetLevel(cfg.Level())
	log.SetReportTimestamp(true)

	path := logFile
	if path == "" && cfg.TUI {
		path = "resonate-media.log"
	}
	if path == "" {
		return nopCloser{}, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}
	if cfg.TUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}
	return f, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Info("Starting "+version.String(), "driver", cfg.Driver, "inputs", len(args))

	a, err := app.New(app.Config{Config: cfg, Inputs: args, ToneDuration: toneDuration})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("player stopped: %w", err)
	}
	log.Info("Player stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
