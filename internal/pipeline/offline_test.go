package pipeline

import (
	"errors"
	"testing"

	"github.com/petems/spectra/internal/audio"
	"github.com/petems/spectra/internal/spectral"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeClip(t *testing.T) {
	clip := audio.Clip{
		Samples:    stereoSine(3*32+10, 4),
		Channels:   2,
		SampleRate: 8000,
	}

	var frames []Frame
	err := AnalyzeClip(clip, spectral.Options{Window: 16, Smoothing: 1}, 2, func(f Frame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, frames, 3)
	for i, f := range frames {
		assert.Equal(t, i, f.Index)
		assert.Len(t, f.Bins, 12)
		assert.InDelta(t, float64(i*32)/8000, f.Time, 1e-9)
		assert.GreaterOrEqual(t, f.Levels.Total, float32(0))
	}
}

func TestAnalyzeClipStopsOnEmitError(t *testing.T) {
	clip := audio.Clip{Samples: make([]float32, 64), Channels: 1}
	stop := errors.New("stop")

	calls := 0
	err := AnalyzeClip(clip, spectral.Options{Window: 8}, 0, func(Frame) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestAnalyzeClipBadOptions(t *testing.T) {
	err := AnalyzeClip(audio.Clip{Channels: 1}, spectral.Options{Window: 12}, 0, func(Frame) error { return nil })
	assert.Error(t, err)
}
