package audio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// standardRates are probed to find the supported sample rate range
var standardRates = []float64{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}

type portAudioBackend struct{}

// NewPortAudio initializes PortAudio. Close must be called to terminate it.
func NewPortAudio() (Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioBackend{}, nil
}

func (p *portAudioBackend) Name() string { return "portaudio" }

func (p *portAudioBackend) DefaultInput() (Device, error) {
	device, err := portaudio.DefaultInputDevice()
	if err != nil || device == nil {
		return Device{}, fmt.Errorf("%w: no default input device: %v", ErrDeviceUnavailable, err)
	}
	return p.describe(device, true, true), nil
}

func (p *portAudioBackend) DefaultOutput() (Device, error) {
	device, err := portaudio.DefaultOutputDevice()
	if err != nil || device == nil {
		return Device{}, fmt.Errorf("%w: no default output device: %v", ErrDeviceUnavailable, err)
	}
	return p.describe(device, false, true), nil
}

func (p *portAudioBackend) InputDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, p.describe(d, true, d == defaultDevice))
		}
	}

	return result, nil
}

// describe probes which rates the device accepts as float32 at its full
// channel count. PortAudio converts formats in the host layer, so a device
// that rejects float32 here rejects it for real.
func (p *portAudioBackend) describe(d *portaudio.DeviceInfo, input, isDefault bool) Device {
	channels := d.MaxOutputChannels
	if input {
		channels = d.MaxInputChannels
	}

	cfg := StreamConfig{Channels: channels, Format: FormatUnknown}
	for _, rate := range standardRates {
		if probe(d, input, channels, rate) != nil {
			continue
		}
		if cfg.MinSampleRate == 0 {
			cfg.MinSampleRate = rate
		}
		cfg.MaxSampleRate = rate
		cfg.Format = FormatF32
	}
	if cfg.Format == FormatF32 {
		cfg.SampleRate = d.DefaultSampleRate
	}

	return NewDevice(d.Name, d.Name, isDefault, []StreamConfig{cfg}, d)
}

func probe(d *portaudio.DeviceInfo, input bool, channels int, rate float64) error {
	params := portaudio.StreamParameters{SampleRate: rate}
	if input {
		params.Input = portaudio.StreamDeviceParameters{Device: d, Channels: channels, Latency: d.DefaultLowInputLatency}
		return portaudio.IsFormatSupported(params, func(in []float32) {})
	}
	params.Output = portaudio.StreamDeviceParameters{Device: d, Channels: channels, Latency: d.DefaultLowOutputLatency}
	return portaudio.IsFormatSupported(params, func(out []float32) {})
}

func paDevice(dev Device) (*portaudio.DeviceInfo, error) {
	d, ok := dev.native.(*portaudio.DeviceInfo)
	if !ok || d == nil {
		return nil, fmt.Errorf("%w: %s is not a PortAudio device", ErrDeviceUnavailable, dev.Name)
	}
	return d, nil
}

func (p *portAudioBackend) OpenInput(dev Device, cfg StreamConfig, onData func([]float32), onError func(error)) (Stream, error) {
	device, err := paDevice(dev)
	if err != nil {
		return nil, err
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}, func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		if flags&portaudio.InputOverflow != 0 && onError != nil {
			onError(ErrInputOverflow)
		}
		onData(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", translate(err))
	}

	return &portAudioStream{stream: stream}, nil
}

func (p *portAudioBackend) OpenOutput(dev Device, cfg StreamConfig, fill func([]float32), onError func(error)) (Stream, error) {
	device, err := paDevice(dev)
	if err != nil {
		return nil, err
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowOutputLatency,
		},
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}, func(out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		if flags&portaudio.OutputUnderflow != 0 && onError != nil {
			onError(ErrOutputUnderflow)
		}
		fill(out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", translate(err))
	}

	return &portAudioStream{stream: stream}, nil
}

func (p *portAudioBackend) Close() error {
	return portaudio.Terminate()
}

// translate maps PortAudio errors onto the package sentinels
func translate(err error) error {
	var paErr portaudio.Error
	if !errors.As(err, &paErr) {
		return err
	}
	switch paErr {
	case portaudio.SampleFormatNotSupported, portaudio.InvalidChannelCount, portaudio.InvalidSampleRate:
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	case portaudio.DeviceUnavailable, portaudio.InvalidDevice, portaudio.NoDefaultInputDevice, portaudio.NoDefaultOutputDevice:
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	default:
		return err
	}
}

type portAudioStream struct {
	stream *portaudio.Stream
}

func (s *portAudioStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	return nil
}

func (s *portAudioStream) Stop() error {
	return s.stream.Stop()
}

func (s *portAudioStream) Close() error {
	return s.stream.Close()
}
