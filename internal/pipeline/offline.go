package pipeline

import (
	"github.com/petems/spectra/internal/audio"
	"github.com/petems/spectra/internal/spectral"
)

// Frame is one analyzed window of a recording
type Frame struct {
	Index  int             `json:"index"`
	Time   float64         `json:"time"` // seconds from the start of the clip to the window start
	Levels spectral.Levels `json:"levels"`
	Bins   []float32       `json:"bins,omitempty"`
}

// AnalyzeClip runs the first channel of clip through a fresh analyzer and
// calls emit with each trimmed frame. A trailing partial window is dropped.
func AnalyzeClip(clip audio.Clip, opts spectral.Options, margin int, emit func(Frame) error) error {
	a, err := spectral.New(opts)
	if err != nil {
		return err
	}

	window := 2 * a.Bins()
	index := 0
	for _, sample := range clip.Mono() {
		spectrum, ok := a.Write(sample)
		if !ok {
			continue
		}

		trimmed := spectral.Trim(spectrum, margin)
		frame := Frame{
			Index:  index,
			Levels: trimmed.Levels(),
			Bins:   trimmed,
		}
		if clip.SampleRate > 0 {
			frame.Time = float64(index*window) / float64(clip.SampleRate)
		}
		if err := emit(frame); err != nil {
			return err
		}
		index++
	}
	return nil
}
