// Package metrics exposes pipeline counters to Prometheus
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/petems/spectra/internal/audio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const metricsPath = "/metrics"

// Pipeline holds the capture and analysis collectors. It satisfies both
// capture.Observer and spectral.Observer.
type Pipeline struct {
	registry *prometheus.Registry

	samplesCaptured  prometheus.Counter
	samplesDropped   prometheus.Counter
	spectraEmitted   prometheus.Counter
	deviceErrors     *prometheus.CounterVec
	analysisDuration prometheus.Histogram
}

// NewPipeline creates the collectors and registers them with registry
func NewPipeline(registry *prometheus.Registry) (*Pipeline, error) {
	m := &Pipeline{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Pipeline) initMetrics() {
	m.samplesCaptured = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectra_samples_captured_total",
		Help: "Samples accepted into the sample queue",
	})

	m.samplesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectra_samples_dropped_total",
		Help: "Samples discarded by the queue overflow policy",
	})

	m.spectraEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectra_spectra_emitted_total",
		Help: "Spectra produced by the analyzer",
	})

	m.deviceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spectra_device_errors_total",
			Help: "Runtime errors reported by audio streams",
		},
		[]string{"kind"}, // overflow, underflow, stopped, other
	)

	m.analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spectra_analysis_duration_seconds",
		Help:    "Time spent transforming one analysis window",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12), // 10µs to ~20ms
	})
}

// Describe implements prometheus.Collector
func (m *Pipeline) Describe(ch chan<- *prometheus.Desc) {
	m.samplesCaptured.Describe(ch)
	m.samplesDropped.Describe(ch)
	m.spectraEmitted.Describe(ch)
	m.deviceErrors.Describe(ch)
	m.analysisDuration.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Pipeline) Collect(ch chan<- prometheus.Metric) {
	m.samplesCaptured.Collect(ch)
	m.samplesDropped.Collect(ch)
	m.spectraEmitted.Collect(ch)
	m.deviceErrors.Collect(ch)
	m.analysisDuration.Collect(ch)
}

// SamplesCaptured records one capture callback's worth of samples
func (m *Pipeline) SamplesCaptured(accepted, dropped int) {
	if accepted > 0 {
		m.samplesCaptured.Add(float64(accepted))
	}
	if dropped > 0 {
		m.samplesDropped.Add(float64(dropped))
	}
}

// DeviceError counts a runtime stream error by kind
func (m *Pipeline) DeviceError(err error) {
	m.deviceErrors.WithLabelValues(errorKind(err)).Inc()
}

// SpectrumEmitted records one analysis cycle
func (m *Pipeline) SpectrumEmitted(took time.Duration) {
	m.spectraEmitted.Inc()
	m.analysisDuration.Observe(took.Seconds())
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, audio.ErrInputOverflow):
		return "overflow"
	case errors.Is(err, audio.ErrOutputUnderflow):
		return "underflow"
	case errors.Is(err, audio.ErrStreamStopped):
		return "stopped"
	default:
		return "other"
	}
}

// Handler returns the scrape handler for registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Serve exposes registry on addr until ctx is done
func Serve(ctx context.Context, addr string, registry *prometheus.Registry, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, Handler(registry))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
