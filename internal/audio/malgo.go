package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rs/zerolog"
)

// miniaudio reports a zero sample rate for formats that accept any rate
const (
	malgoAnyRateMin = 8000
	malgoAnyRateMax = 48000
)

type malgoBackend struct {
	ctx *malgo.AllocatedContext
	log zerolog.Logger
}

// NewMalgo initializes a miniaudio context with automatic backend selection
func NewMalgo(log zerolog.Logger) (Backend, error) {
	log = log.With().Str("backend", "malgo").Logger()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Msg(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	return &malgoBackend{ctx: ctx, log: log}, nil
}

func (m *malgoBackend) Name() string { return "malgo" }

func (m *malgoBackend) DefaultInput() (Device, error) {
	return m.defaultDevice(malgo.Capture)
}

func (m *malgoBackend) DefaultOutput() (Device, error) {
	return m.defaultDevice(malgo.Playback)
}

func (m *malgoBackend) defaultDevice(kind malgo.DeviceType) (Device, error) {
	infos, err := m.ctx.Devices(kind)
	if err != nil {
		return Device{}, fmt.Errorf("failed to get devices: %w", err)
	}
	if len(infos) == 0 {
		return Device{}, fmt.Errorf("%w: no %s devices", ErrDeviceUnavailable, kindName(kind))
	}

	// Prefer the flagged default, otherwise the first enumerated device
	chosen := infos[0]
	for _, info := range infos {
		if info.IsDefault == 1 {
			chosen = info
			break
		}
	}

	return m.describe(kind, chosen)
}

func (m *malgoBackend) InputDevices() ([]Device, error) {
	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(infos))
	for _, info := range infos {
		dev, err := m.describe(malgo.Capture, info)
		if err != nil {
			m.log.Warn().Err(err).Str("device", info.Name()).Msg("Skipping device")
			continue
		}
		result = append(result, dev)
	}

	return result, nil
}

// describe queries the full native format list, which Devices() leaves
// empty on most backends.
func (m *malgoBackend) describe(kind malgo.DeviceType, info malgo.DeviceInfo) (Device, error) {
	full, err := m.ctx.DeviceInfo(kind, info.ID, malgo.Shared)
	if err != nil {
		return Device{}, fmt.Errorf("failed to query device %s: %w", info.Name(), err)
	}

	id := info.ID
	return NewDevice(id.String(), info.Name(), info.IsDefault == 1, configsFromFormats(full.Formats), &id), nil
}

// configsFromFormats folds miniaudio's flat (format, channels, rate) list
// into one config per format/channel pair, keeping enumeration order.
func configsFromFormats(formats []malgo.DataFormat) []StreamConfig {
	var configs []StreamConfig
	index := make(map[[2]uint32]int)

	for _, f := range formats {
		minRate, maxRate := float64(f.SampleRate), float64(f.SampleRate)
		if f.SampleRate == 0 {
			minRate, maxRate = malgoAnyRateMin, malgoAnyRateMax
		}

		key := [2]uint32{uint32(f.Format), f.Channels}
		if i, ok := index[key]; ok {
			configs[i].MinSampleRate = math.Min(configs[i].MinSampleRate, minRate)
			configs[i].MaxSampleRate = math.Max(configs[i].MaxSampleRate, maxRate)
			continue
		}

		index[key] = len(configs)
		configs = append(configs, StreamConfig{
			Channels:      int(f.Channels),
			Format:        formatFromMalgo(f.Format),
			SampleRate:    maxRate,
			MinSampleRate: minRate,
			MaxSampleRate: maxRate,
		})
	}

	return configs
}

func formatFromMalgo(f malgo.FormatType) SampleFormat {
	switch f {
	case malgo.FormatU8:
		return FormatU8
	case malgo.FormatS16:
		return FormatS16
	case malgo.FormatS24:
		return FormatS24
	case malgo.FormatS32:
		return FormatS32
	case malgo.FormatF32:
		return FormatF32
	default:
		return FormatUnknown
	}
}

func kindName(kind malgo.DeviceType) string {
	if kind == malgo.Capture {
		return "capture"
	}
	return "playback"
}

func malgoID(dev Device) (*malgo.DeviceID, error) {
	id, ok := dev.native.(*malgo.DeviceID)
	if !ok || id == nil {
		return nil, fmt.Errorf("%w: %s is not a miniaudio device", ErrDeviceUnavailable, dev.Name)
	}
	return id, nil
}

func (m *malgoBackend) OpenInput(dev Device, cfg StreamConfig, onData func([]float32), onError func(error)) (Stream, error) {
	id, err := malgoID(dev)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.Capture.DeviceID = id.Pointer()
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	s := &malgoStream{}
	var scratch []float32

	callbacks := malgo.DeviceCallbacks{
		// miniaudio serializes data callbacks per device, scratch is not shared
		Data: func(_, input []byte, framecount uint32) {
			scratch = decodeF32(scratch, input)
			onData(scratch)
		},
		Stop: s.onStop(onError),
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	s.device = device

	return s, nil
}

func (m *malgoBackend) OpenOutput(dev Device, cfg StreamConfig, fill func([]float32), onError func(error)) (Stream, error) {
	id, err := malgoID(dev)
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.Playback.DeviceID = id.Pointer()
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	s := &malgoStream{}
	var scratch []float32

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, framecount uint32) {
			n := len(output) / 4
			if cap(scratch) < n {
				scratch = make([]float32, n)
			}
			scratch = scratch[:n]
			fill(scratch)
			encodeF32(output, scratch)
		},
		Stop: s.onStop(onError),
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	s.device = device

	return s, nil
}

func (m *malgoBackend) Close() error {
	if m.ctx == nil {
		return nil
	}
	err := m.ctx.Uninit()
	m.ctx.Free()
	m.ctx = nil
	return err
}

// decodeF32 converts little-endian float32 PCM bytes into dst
func decodeF32(dst []float32, b []byte) []float32 {
	n := len(b) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return dst
}

// encodeF32 writes samples into b as little-endian float32 PCM
func encodeF32(b []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(s))
	}
}

type malgoStream struct {
	device   *malgo.Device
	stopping atomic.Bool
}

// onStop reports device-initiated stops; stops we asked for are silent
func (s *malgoStream) onStop(onError func(error)) malgo.StopProc {
	return func() {
		if s.stopping.Load() || onError == nil {
			return
		}
		onError(ErrStreamStopped)
	}
}

func (s *malgoStream) Start() error {
	s.stopping.Store(false)
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start device: %w", err)
	}
	return nil
}

func (s *malgoStream) Stop() error {
	s.stopping.Store(true)
	return s.device.Stop()
}

func (s *malgoStream) Close() error {
	s.stopping.Store(true)
	s.device.Uninit()
	return nil
}
