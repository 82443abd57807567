package main

import (
	"context"
	"fmt"
	"time"

	"github.com/petems/spectra/internal/audio"
	"github.com/petems/spectra/internal/metrics"
	"github.com/petems/spectra/internal/permissions"
	"github.com/petems/spectra/internal/pipeline"
	"github.com/petems/spectra/internal/spectral"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var statsInterval time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture from the input device and analyze until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runLive,
}

func init() {
	runCmd.Flags().DurationVar(&statsInterval, "stats-interval", 5*time.Second, "how often to log pipeline statistics")
	rootCmd.AddCommand(runCmd)
}

func runLive(cmd *cobra.Command, args []string) error {
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive, got %s", statsInterval)
	}

	// macOS requires explicit microphone approval before capture works
	if err := permissions.EnsureMicrophone(); err != nil {
		return fmt.Errorf("required permissions not granted: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	backend, err := audio.New(cfg.Audio, log)
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer backend.Close()

	registry := prometheus.NewRegistry()
	m, err := metrics.NewPipeline(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, registry, log); err != nil {
				log.Error().Err(err).Msg("Metrics server error")
			}
		}()
	}

	p, err := pipeline.New(pipeline.Config{
		Backend: backend,
		Config:  cfg,
		Logger:  log,
		Metrics: m,
	})
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	sigChan := interrupts()
	go func() {
		select {
		case <-sigChan:
			log.Info().Msg("Shutting down...")
			p.Stop()
		case <-ctx.Done():
		}
	}()

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		consume(ctx, p, cfg.Consumer.Margin, statsInterval)
	}()

	log.Info().Str("backend", backend.Name()).Int("bins", p.Bins()).Msg("spectra starting...")

	err = p.Run(ctx)
	<-consumed
	return err
}

// consume pulls every spectrum, logging band levels at debug and queue
// statistics at info.
func consume(ctx context.Context, p *pipeline.Pipeline, margin int, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	frames := 0
	for {
		select {
		case s, ok := <-p.Spectra():
			if !ok {
				return
			}
			frames++
			lvl := spectral.Trim(s, margin).Levels()
			log.Debug().
				Float32("bass", lvl.Bass).
				Float32("mid", lvl.Mid).
				Float32("treble", lvl.Treble).
				Float32("total", lvl.Total).
				Msg("Spectrum")
		case <-ticker.C:
			st := p.Stats()
			log.Info().
				Int("spectra", frames).
				Uint64("samples", st.Pushed).
				Uint64("dropped", st.Dropped).
				Int("queued", st.Queued).
				Float64("sample_rate", p.StreamConfig().SampleRate).
				Msg("Pipeline stats")
		case <-ctx.Done():
			return
		}
	}
}
