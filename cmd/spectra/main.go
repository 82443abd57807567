package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/petems/spectra/internal/config"
	"github.com/petems/spectra/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

var (
	configFile string
	logLevel   string
	backend    string
	deviceID   string

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "spectra",
	Short: "Live audio spectrum analyzer",
	Long: `spectra captures audio from an input device and turns it into a stream
of smoothed magnitude spectra.

Configuration is read from the platform config directory
(` + config.Path() + `) and can be overridden with SPECTRA_* environment
variables, e.g. SPECTRA_ANALYZER_SMOOTHING=0.7.`,
	Version:           fmt.Sprintf("%s (%s)", Version, Commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is "+config.Path()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "audio backend (portaudio, malgo)")
	rootCmd.PersistentFlags().StringVar(&deviceID, "device", "", "input device ID or name")
}

// loadConfig applies flag overrides on top of file and environment values
func loadConfig(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.Path()
	}

	loaded, err := config.LoadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		loaded.LogLevel = logLevel
	}
	if flags.Changed("backend") {
		loaded.Audio.Backend = backend
	}
	if flags.Changed("device") {
		loaded.Audio.DeviceID = deviceID
	}

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	cfg = loaded
	log = logging.NewWithLevel(cfg.LogLevel)
	return nil
}

// interrupts delivers SIGINT and SIGTERM
func interrupts() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	return sigChan
}

func main() {
	// Replaced with the configured level once flags are parsed
	log = logging.New()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("spectra failed")
	}
}
