// Package audiotest provides an in-memory audio.Backend for tests.
package audiotest

import (
	"errors"
	"sync"

	"github.com/petems/spectra/internal/audio"
)

// Backend is a fake audio subsystem. Tests drive its streams by calling
// Deliver (capture) and Pull (playback) as if they were the audio thread.
type Backend struct {
	Input  *audio.Device
	Output *audio.Device

	// OpenErr is returned by OpenInput/OpenOutput when set
	OpenErr error

	mu      sync.Mutex
	inputs  []*Stream
	outputs []*Stream
	closed  bool
	opened  chan *Stream
}

// New returns a backend with one stereo float32 input and output topping out at 48 kHz
func New() *Backend {
	cfg := audio.StreamConfig{Channels: 2, Format: audio.FormatF32, SampleRate: 44100, MinSampleRate: 8000, MaxSampleRate: 48000}
	in := audio.NewDevice("fake-in", "Fake Input", true, []audio.StreamConfig{cfg}, nil)
	out := audio.NewDevice("fake-out", "Fake Output", true, []audio.StreamConfig{cfg}, nil)
	return &Backend{Input: &in, Output: &out, opened: make(chan *Stream, 16)}
}

func (b *Backend) Name() string { return "fake" }

func (b *Backend) DefaultInput() (audio.Device, error) {
	if b.Input == nil {
		return audio.Device{}, audio.ErrDeviceUnavailable
	}
	return *b.Input, nil
}

func (b *Backend) DefaultOutput() (audio.Device, error) {
	if b.Output == nil {
		return audio.Device{}, audio.ErrDeviceUnavailable
	}
	return *b.Output, nil
}

func (b *Backend) InputDevices() ([]audio.Device, error) {
	if b.Input == nil {
		return nil, nil
	}
	return []audio.Device{*b.Input}, nil
}

func (b *Backend) OpenInput(dev audio.Device, cfg audio.StreamConfig, onData func([]float32), onError func(error)) (audio.Stream, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	s := &Stream{Config: cfg, onData: onData, onError: onError}
	b.mu.Lock()
	b.inputs = append(b.inputs, s)
	b.mu.Unlock()
	b.opened <- s
	return s, nil
}

func (b *Backend) OpenOutput(dev audio.Device, cfg audio.StreamConfig, fill func([]float32), onError func(error)) (audio.Stream, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	s := &Stream{Config: cfg, fill: fill, onError: onError}
	b.mu.Lock()
	b.outputs = append(b.outputs, s)
	b.mu.Unlock()
	b.opened <- s
	return s, nil
}

// Opened delivers every stream as it is opened
func (b *Backend) Opened() <-chan *Stream {
	return b.opened
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

var errNotRunning = errors.New("stream not running")

// Stream is a fake device stream
type Stream struct {
	Config audio.StreamConfig

	onData  func([]float32)
	fill    func([]float32)
	onError func(error)

	mu      sync.Mutex
	started bool
	stopped bool
	closed  bool
}

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.stopped = false
	return nil
}

func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Deliver invokes the capture callback with an interleaved buffer. Like a
// real device, Stop and Close wait for an in-flight callback to return.
func (s *Stream) Deliver(interleaved []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped || s.closed {
		return errNotRunning
	}
	s.onData(interleaved)
	return nil
}

// Pull invokes the playback callback for the given number of frames
func (s *Stream) Pull(frames int) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped || s.closed {
		return nil, errNotRunning
	}
	out := make([]float32, frames*s.Config.Channels)
	s.fill(out)
	return out, nil
}

// Fail reports a runtime device error through the error callback
func (s *Stream) Fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

// Stopped reports whether Stop or Close was called
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped || s.closed
}

// Closed reports whether Close was called
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
