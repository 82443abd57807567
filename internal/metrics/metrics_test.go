package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/petems/spectra/internal/audio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	m, err := NewPipeline(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestSamplesCaptured(t *testing.T) {
	m := newPipeline(t)

	m.SamplesCaptured(100, 0)
	m.SamplesCaptured(40, 10)
	m.SamplesCaptured(0, 0)

	assert.Equal(t, 140.0, testutil.ToFloat64(m.samplesCaptured))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.samplesDropped))
}

func TestDeviceErrorKinds(t *testing.T) {
	m := newPipeline(t)

	m.DeviceError(audio.ErrInputOverflow)
	m.DeviceError(audio.ErrInputOverflow)
	m.DeviceError(audio.ErrStreamStopped)
	m.DeviceError(errors.New("disconnected"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.deviceErrors.WithLabelValues("overflow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deviceErrors.WithLabelValues("stopped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deviceErrors.WithLabelValues("other")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.deviceErrors.WithLabelValues("underflow")))
}

func TestSpectrumEmitted(t *testing.T) {
	m := newPipeline(t)

	m.SpectrumEmitted(50 * time.Microsecond)
	m.SpectrumEmitted(80 * time.Microsecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.spectraEmitted))
	assert.Equal(t, 1, testutil.CollectAndCount(m.analysisDuration))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPipeline(reg)
	require.NoError(t, err)

	_, err = NewPipeline(reg)
	assert.Error(t, err)
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewPipeline(reg)
	require.NoError(t, err)
	m.SamplesCaptured(7, 0)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	expected := `
# HELP spectra_samples_captured_total Samples accepted into the sample queue
# TYPE spectra_samples_captured_total counter
spectra_samples_captured_total 7
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "spectra_samples_captured_total"))
}
