package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Clip is a finite decoded recording, interleaved and normalized to [-1, 1]
type Clip struct {
	Samples    []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of frames in the clip
func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Mono returns the first channel of the clip
func (c Clip) Mono() []float32 {
	return FirstChannel(nil, c.Samples, c.Channels)
}

// LoadClip decodes the WAV file at path
func LoadClip(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, err
	}
	defer f.Close()

	clip, err := ReadClip(f)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return clip, nil
}

// ReadClip decodes a PCM WAV stream
func ReadClip(r io.ReadSeeker) (Clip, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Clip{}, errors.New("not a valid WAV file")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Clip{}, err
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 {
		return Clip{}, errors.New("WAV file has no channel information")
	}

	bitDepth := int(d.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	scale := float32(goaudio.IntMaxSignedValue(bitDepth))
	if scale <= 0 {
		return Clip{}, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	// 8-bit PCM is unsigned with silence at 128
	var offset float32
	if bitDepth == 8 {
		offset, scale = 128, 128
	}

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = (float32(v) - offset) / scale
	}

	return Clip{
		Samples:    samples,
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// WriteClip encodes the clip as 16-bit PCM WAV
func WriteClip(w io.WriteSeeker, c Clip) error {
	const bitDepth = 16
	scale := float32(goaudio.IntMaxSignedValue(bitDepth))

	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * scale)
	}

	enc := wav.NewEncoder(w, c.SampleRate, bitDepth, c.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: c.Channels, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
