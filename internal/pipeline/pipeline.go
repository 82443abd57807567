// Package pipeline wires capture, the sample queue and the analyzer together.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/petems/spectra/internal/audio"
	"github.com/petems/spectra/internal/capture"
	"github.com/petems/spectra/internal/config"
	"github.com/petems/spectra/internal/metrics"
	"github.com/petems/spectra/internal/queue"
	"github.com/petems/spectra/internal/spectral"
	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned by a second call to Run
var ErrAlreadyRunning = errors.New("pipeline already ran")

// Config holds the pipeline's injected dependencies
type Config struct {
	Backend audio.Backend
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *metrics.Pipeline // Optional - can be nil
}

// Stats is a snapshot of sample queue activity
type Stats struct {
	Pushed  uint64
	Dropped uint64
	Queued  int
}

// Pipeline is a single-use capture → analysis chain
type Pipeline struct {
	samples  *queue.Samples
	analyzer *spectral.Analyzer
	source   *capture.Source
	log      zerolog.Logger

	mu      sync.Mutex
	started bool
}

// New builds the queue, analyzer and capture source from cfg
func New(cfg Config) (*Pipeline, error) {
	if cfg.Backend == nil {
		return nil, errors.New("pipeline requires an audio backend")
	}
	if cfg.Config == nil {
		cfg.Config = config.Default()
	}

	samples, err := queue.FromConfig(cfg.Config.Queue)
	if err != nil {
		return nil, fmt.Errorf("failed to create sample queue: %w", err)
	}

	opts, err := spectral.OptionsFromConfig(cfg.Config.Analyzer)
	if err != nil {
		return nil, fmt.Errorf("failed to configure analyzer: %w", err)
	}
	opts.Logger = cfg.Logger

	captureOpts := []capture.Option{
		capture.WithLogger(cfg.Logger),
		capture.WithDevice(cfg.Config.Audio.DeviceID),
	}
	if cfg.Metrics != nil {
		opts.Observer = cfg.Metrics
		captureOpts = append(captureOpts, capture.WithObserver(cfg.Metrics))
	}

	analyzer, err := spectral.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	return &Pipeline{
		samples:  samples,
		analyzer: analyzer,
		source:   capture.New(cfg.Backend, samples, captureOpts...),
		log:      cfg.Logger,
	}, nil
}

// Run starts the analyzer and captures until Stop is called or ctx is done.
// It returns once the analyzer has drained the sample queue and closed the
// spectrum channel, so consumers must keep reading until then or cancel ctx.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.started = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.analyzer.Run(ctx, p.samples.C())
	}()

	err := p.source.Run(ctx)
	<-done

	st := p.Stats()
	p.log.Info().
		Uint64("pushed", st.Pushed).
		Uint64("dropped", st.Dropped).
		Msg("Pipeline stopped")

	return err
}

// Stop requests capture termination; the analyzer follows once the queue drains
func (p *Pipeline) Stop() {
	p.source.Stop()
}

// Spectra returns the spectrum channel
func (p *Pipeline) Spectra() <-chan spectral.Spectrum {
	return p.analyzer.Spectra()
}

// Next blocks for the next spectrum; false at end of stream
func (p *Pipeline) Next(ctx context.Context) (spectral.Spectrum, bool) {
	return p.analyzer.Next(ctx)
}

// Bins returns the length of every spectrum
func (p *Pipeline) Bins() int {
	return p.analyzer.Bins()
}

// StreamConfig returns the negotiated capture configuration
func (p *Pipeline) StreamConfig() audio.StreamConfig {
	return p.source.Config()
}

// Stats returns current sample queue counters
func (p *Pipeline) Stats() Stats {
	return Stats{
		Pushed:  p.samples.Pushed(),
		Dropped: p.samples.Dropped(),
		Queued:  p.samples.Len(),
	}
}
