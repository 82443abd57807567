package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/petems/spectra/internal/config"
	"github.com/rs/zerolog"
)

var (
	// ErrDeviceUnavailable is returned when no matching device exists
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrUnsupportedFormat is returned when a device offers no float32 interleaved config
	ErrUnsupportedFormat = errors.New("unsupported sample format")

	// Runtime stream conditions delivered to error callbacks
	ErrInputOverflow   = errors.New("input overflow")
	ErrOutputUnderflow = errors.New("output underflow")
	ErrStreamStopped   = errors.New("stream stopped by device")
)

// SampleFormat is the PCM encoding a device offers
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatU8
	FormatS16
	FormatS24
	FormatS32
	FormatF32
)

func (f SampleFormat) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// StreamConfig describes one stream configuration a device supports.
// SampleRate is the rate a stream is opened with; MinSampleRate and
// MaxSampleRate bound what the device accepts for this channel/format pair.
type StreamConfig struct {
	Channels      int
	Format        SampleFormat
	SampleRate    float64
	MinSampleRate float64
	MaxSampleRate float64
}

// WithMaxSampleRate returns the config raised to its highest supported rate
func (c StreamConfig) WithMaxSampleRate() StreamConfig {
	c.SampleRate = c.MaxSampleRate
	return c
}

// Device represents an audio device and the configs it enumerates
type Device struct {
	ID      string
	Name    string
	Default bool
	Configs []StreamConfig

	native any // backend handle
}

// Stream is an open callback-driven device stream
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend is a platform audio subsystem
type Backend interface {
	Name() string
	DefaultInput() (Device, error)
	DefaultOutput() (Device, error)
	InputDevices() ([]Device, error)
	// OpenInput opens a capture stream. onData receives interleaved frames on
	// the audio thread and must not block; the slice is reused after it returns.
	OpenInput(dev Device, cfg StreamConfig, onData func(interleaved []float32), onError func(error)) (Stream, error)
	// OpenOutput opens a playback stream. fill must write every sample of out.
	OpenOutput(dev Device, cfg StreamConfig, fill func(out []float32), onError func(error)) (Stream, error)
	Close() error
}

// New creates the backend named in cfg
func New(cfg config.AudioConfig, log zerolog.Logger) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "portaudio":
		return NewPortAudio()
	case "malgo", "miniaudio":
		return NewMalgo(log)
	default:
		return nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

// Negotiate picks the first enumerated configuration at its maximum
// supported sample rate. Anything but float32 is a hard failure.
func Negotiate(dev Device) (StreamConfig, error) {
	if len(dev.Configs) == 0 {
		return StreamConfig{}, fmt.Errorf("%w: %s enumerates no configurations", ErrUnsupportedFormat, dev.Name)
	}

	cfg := dev.Configs[0].WithMaxSampleRate()
	if cfg.Format != FormatF32 {
		return StreamConfig{}, fmt.Errorf("%w: %s offers %s", ErrUnsupportedFormat, dev.Name, cfg.Format)
	}
	if cfg.Channels <= 0 || cfg.SampleRate <= 0 {
		return StreamConfig{}, fmt.Errorf("%w: %s reports %d channels at %.0f Hz", ErrUnsupportedFormat, dev.Name, cfg.Channels, cfg.SampleRate)
	}

	return cfg, nil
}

// FindInput returns the default input when id is empty, otherwise the
// input device whose ID or name matches id.
func FindInput(b Backend, id string) (Device, error) {
	if id == "" {
		return b.DefaultInput()
	}

	devices, err := b.InputDevices()
	if err != nil {
		return Device{}, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.ID == id || d.Name == id {
			return d, nil
		}
	}

	return Device{}, fmt.Errorf("%w: %s", ErrDeviceUnavailable, id)
}

// NewDevice builds a Device carrying a backend-private handle.
// Backends outside this package (test fakes) use it to round-trip state.
func NewDevice(id, name string, isDefault bool, configs []StreamConfig, native any) Device {
	return Device{ID: id, Name: name, Default: isDefault, Configs: configs, native: native}
}

// Native returns the backend-private handle
func (d Device) Native() any {
	return d.native
}
