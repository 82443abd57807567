package spectral

import (
	"testing"

	"github.com/petems/spectra/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrim(t *testing.T) {
	s := Spectrum{0, 1, 2, 3, 4, 5}

	assert.Equal(t, Spectrum{1, 2, 3, 4}, Trim(s, 1))
	assert.Equal(t, s, Trim(s, 0))
	assert.Empty(t, Trim(s, 3))
	assert.Empty(t, Trim(s, 10))
}

func TestTrimReferenceWindow(t *testing.T) {
	s := make(Spectrum, DefaultWindow)
	for i := range s {
		s[i] = float32(i)
	}

	got := Trim(s, 50)
	require.Len(t, got, 412)
	assert.Equal(t, float32(50), got[0])
	assert.Equal(t, float32(461), got[len(got)-1])
}

func TestLevels(t *testing.T) {
	s := make(Spectrum, 100)
	for i := 0; i < 25; i++ {
		s[i] = 4
		s[75+i] = 2
	}
	for i := 35; i < 65; i++ {
		s[i] = 1
	}

	lvl := s.Levels()
	assert.Equal(t, float32(4), lvl.Bass)
	assert.Equal(t, float32(1), lvl.Mid)
	assert.Equal(t, float32(2), lvl.Treble)
	assert.InDelta(t, (25*4+30*1+25*2)/100.0, lvl.Total, 1e-6)
}

func TestLevelsShortSpectrum(t *testing.T) {
	assert.Equal(t, Levels{}, Spectrum{}.Levels())

	lvl := Spectrum{3}.Levels()
	assert.Equal(t, Levels{Bass: 3, Mid: 3, Treble: 3, Total: 3}, lvl)

	lvl = Spectrum{1, 3}.Levels()
	assert.Equal(t, float32(2), lvl.Bass)
	assert.Equal(t, float32(2), lvl.Mid)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Analyzer
	cfg.Taper = "hann"
	cfg.SmoothingPolicy = config.SmoothingClamp

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Window, opts.Window)
	assert.Equal(t, cfg.Smoothing, opts.Smoothing)
	assert.Equal(t, Clamp, opts.Policy)
	assert.Equal(t, "hann", opts.Taper)
	assert.Equal(t, cfg.SpectrumQueue, opts.Queue)

	cfg.SmoothingPolicy = "bogus"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
