package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Queue overflow policies
const (
	PolicyDropNewest = "drop-newest"
	PolicyDropOldest = "drop-oldest"
	PolicyBlock      = "block"
)

// Smoothing policies for out-of-range blend weights
const (
	SmoothingPassThrough = "pass-through"
	SmoothingClamp       = "clamp"
	SmoothingReject      = "reject"
)

type Config struct {
	LogLevel string         `json:"log_level" mapstructure:"log_level"`
	Audio    AudioConfig    `json:"audio" mapstructure:"audio"`
	Analyzer AnalyzerConfig `json:"analyzer" mapstructure:"analyzer"`
	Queue    QueueConfig    `json:"queue" mapstructure:"queue"`
	Consumer ConsumerConfig `json:"consumer" mapstructure:"consumer"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
}

type AudioConfig struct {
	Backend  string `json:"backend" mapstructure:"backend"` // "portaudio" or "malgo"
	DeviceID string `json:"device_id" mapstructure:"device_id"`
}

type AnalyzerConfig struct {
	Window          int     `json:"window" mapstructure:"window"` // bins per spectrum, transform size is 2x
	Smoothing       float32 `json:"smoothing" mapstructure:"smoothing"`
	SmoothingPolicy string  `json:"smoothing_policy" mapstructure:"smoothing_policy"`
	Taper           string  `json:"taper" mapstructure:"taper"` // "none", "hann", "hamming", "blackman"
	SpectrumQueue   int     `json:"spectrum_queue" mapstructure:"spectrum_queue"`
}

type QueueConfig struct {
	Capacity       int    `json:"capacity" mapstructure:"capacity"`
	Policy         string `json:"policy" mapstructure:"policy"`
	BlockTimeoutMS int    `json:"block_timeout_ms" mapstructure:"block_timeout_ms"`
}

type ConsumerConfig struct {
	Margin int `json:"margin" mapstructure:"margin"`
}

type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"` // empty disables the endpoint
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:  "portaudio",
			DeviceID: "",
		},
		Analyzer: AnalyzerConfig{
			Window:          512,
			Smoothing:       0.5,
			SmoothingPolicy: SmoothingPassThrough,
			Taper:           "none",
			SpectrumQueue:   8,
		},
		Queue: QueueConfig{
			Capacity:       16384,
			Policy:         PolicyDropNewest,
			BlockTimeoutMS: 2,
		},
		Consumer: ConsumerConfig{
			Margin: 50,
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}
}

// Load reads the config from the platform path or returns defaults
func Load() (*Config, error) {
	return LoadFile(configPath())
}

// LoadFile reads the config at path. A missing file is not an error.
// SPECTRA_* environment variables override file values, e.g.
// SPECTRA_ANALYZER_SMOOTHING=0.7.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("SPECTRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("audio.backend", cfg.Audio.Backend)
	v.SetDefault("audio.device_id", cfg.Audio.DeviceID)
	v.SetDefault("analyzer.window", cfg.Analyzer.Window)
	v.SetDefault("analyzer.smoothing", cfg.Analyzer.Smoothing)
	v.SetDefault("analyzer.smoothing_policy", cfg.Analyzer.SmoothingPolicy)
	v.SetDefault("analyzer.taper", cfg.Analyzer.Taper)
	v.SetDefault("analyzer.spectrum_queue", cfg.Analyzer.SpectrumQueue)
	v.SetDefault("queue.capacity", cfg.Queue.Capacity)
	v.SetDefault("queue.policy", cfg.Queue.Policy)
	v.SetDefault("queue.block_timeout_ms", cfg.Queue.BlockTimeoutMS)
	v.SetDefault("consumer.margin", cfg.Consumer.Margin)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

// Validate checks values the pipeline cannot start with
func (c *Config) Validate() error {
	var errs []error

	w := c.Analyzer.Window
	if w <= 0 || w&(w-1) != 0 {
		errs = append(errs, fmt.Errorf("analyzer.window must be a positive power of two, got %d", w))
	}
	if c.Analyzer.SpectrumQueue < 0 {
		errs = append(errs, fmt.Errorf("analyzer.spectrum_queue must not be negative, got %d", c.Analyzer.SpectrumQueue))
	}
	switch c.Analyzer.SmoothingPolicy {
	case SmoothingPassThrough, SmoothingClamp, SmoothingReject:
	default:
		errs = append(errs, fmt.Errorf("unknown analyzer.smoothing_policy %q", c.Analyzer.SmoothingPolicy))
	}
	if c.Queue.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("queue.capacity must be positive, got %d", c.Queue.Capacity))
	}
	switch c.Queue.Policy {
	case PolicyDropNewest, PolicyDropOldest, PolicyBlock:
	default:
		errs = append(errs, fmt.Errorf("unknown queue.policy %q", c.Queue.Policy))
	}
	if c.Consumer.Margin < 0 || 2*c.Consumer.Margin >= w {
		errs = append(errs, fmt.Errorf("consumer.margin %d leaves no bins in a %d-bin spectrum", c.Consumer.Margin, w))
	}

	return errors.Join(errs...)
}

// BlockTimeout returns the producer wait bound for the block policy
func (q QueueConfig) BlockTimeout() time.Duration {
	return time.Duration(q.BlockTimeoutMS) * time.Millisecond
}

// Save writes the config to disk
func (c *Config) Save() error {
	return c.SaveFile(configPath())
}

// SaveFile writes the config to path
func (c *Config) SaveFile(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the platform-specific config file path
func Path() string {
	return configPath()
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "spectra", "config.json")
}
