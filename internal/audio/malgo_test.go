package audio

import (
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigsFromFormats(t *testing.T) {
	formats := []malgo.DataFormat{
		{Format: malgo.FormatF32, Channels: 2, SampleRate: 44100},
		{Format: malgo.FormatS16, Channels: 1, SampleRate: 16000},
		{Format: malgo.FormatF32, Channels: 2, SampleRate: 96000},
		{Format: malgo.FormatF32, Channels: 2, SampleRate: 22050},
	}

	configs := configsFromFormats(formats)
	require.Len(t, configs, 2)

	assert.Equal(t, FormatF32, configs[0].Format)
	assert.Equal(t, 2, configs[0].Channels)
	assert.Equal(t, 22050.0, configs[0].MinSampleRate)
	assert.Equal(t, 96000.0, configs[0].MaxSampleRate)

	assert.Equal(t, FormatS16, configs[1].Format)
	assert.Equal(t, 16000.0, configs[1].MaxSampleRate)
}

func TestConfigsFromFormatsAnyRate(t *testing.T) {
	configs := configsFromFormats([]malgo.DataFormat{{Format: malgo.FormatF32, Channels: 1}})
	require.Len(t, configs, 1)
	assert.Equal(t, float64(malgoAnyRateMin), configs[0].MinSampleRate)
	assert.Equal(t, float64(malgoAnyRateMax), configs[0].MaxSampleRate)
}

func TestF32Codec(t *testing.T) {
	samples := []float32{0, 1, -1, 0.25, -0.125}
	b := make([]byte, len(samples)*4)
	encodeF32(b, samples)

	got := decodeF32(nil, b)
	assert.Equal(t, samples, got)

	// scratch is reused once large enough
	again := decodeF32(got, b)
	assert.Same(t, &got[0], &again[0])
}
