// Package capture pulls live audio from an input device and pushes the
// first channel of every frame into a sample sink.
package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/petems/spectra/internal/audio"
	"github.com/rs/zerolog"
)

// scratchFrames is the initial capacity of the per-callback extraction buffer
const scratchFrames = 4096

// Sink is the producer end of the sample channel
type Sink interface {
	// PushBatch must return within a bounded time for the whole batch
	PushBatch(samples []float32) (accepted, dropped int)
	// Close signals end of stream to the consumer
	Close()
}

// Observer receives capture statistics from the audio thread
type Observer interface {
	SamplesCaptured(accepted, dropped int)
	DeviceError(err error)
}

// Option configures a Source
type Option func(*Source)

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Source) { s.log = log }
}

// WithDevice selects an input device by ID or name instead of the default
func WithDevice(id string) Option {
	return func(s *Source) { s.deviceID = id }
}

// WithObserver attaches capture statistics
func WithObserver(o Observer) Option {
	return func(s *Source) { s.observer = o }
}

// Source owns one input stream for the duration of Run
type Source struct {
	backend  audio.Backend
	sink     Sink
	deviceID string
	log      zerolog.Logger
	observer Observer

	stop     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	cfg audio.StreamConfig

	// audio thread only
	channels int
	scratch  []float32
}

// New creates a capture source writing into sink
func New(backend audio.Backend, sink Sink, opts ...Option) *Source {
	s := &Source{
		backend: backend,
		sink:    sink,
		log:     zerolog.Nop(),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "capture").Logger()
	return s
}

// Run opens the input device and streams samples into the sink until Stop
// is called or ctx is done. The sink is closed on return, including when
// startup fails.
func (s *Source) Run(ctx context.Context) error {
	defer s.sink.Close()

	dev, err := audio.FindInput(s.backend, s.deviceID)
	if err != nil {
		return fmt.Errorf("failed to select input device: %w", err)
	}

	cfg, err := audio.Negotiate(dev)
	if err != nil {
		return fmt.Errorf("failed to negotiate stream config: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.channels = cfg.Channels
	s.scratch = make([]float32, 0, scratchFrames)

	stream, err := s.backend.OpenInput(dev, cfg, s.onData, s.onError)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	s.log.Info().
		Str("device", dev.Name).
		Int("channels", cfg.Channels).
		Float64("sample_rate", cfg.SampleRate).
		Msg("Capture started")

	select {
	case <-ctx.Done():
	case <-s.stop:
	}

	if err := stream.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to stop input stream")
	}
	s.log.Info().Msg("Capture stopped")

	return nil
}

// Stop asks Run to return. It is safe to call more than once and from any goroutine.
func (s *Source) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Config returns the negotiated stream configuration, zero before Run negotiates
func (s *Source) Config() audio.StreamConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Source) onData(interleaved []float32) {
	s.scratch = audio.FirstChannel(s.scratch, interleaved, s.channels)

	accepted, dropped := s.sink.PushBatch(s.scratch)
	if s.observer != nil {
		s.observer.SamplesCaptured(accepted, dropped)
	}
}

func (s *Source) onError(err error) {
	s.log.Warn().Err(err).Msg("Input stream error")
	if s.observer != nil {
		s.observer.DeviceError(err)
	}
}
