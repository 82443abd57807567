// Package playback streams a decoded clip to the default output device.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/petems/spectra/internal/audio"
	"github.com/rs/zerolog"
)

// ErrNotIdle is returned when Play is called on a player that already ran
var ErrNotIdle = errors.New("player is not idle")

// State is the player lifecycle: Idle → Playing → Done
type State int32

const (
	Idle State = iota
	Playing
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Player plays one clip. While Playing, the output callback is the only
// writer of the cursor; the state word is the sole shared field.
type Player struct {
	backend audio.Backend
	log     zerolog.Logger

	state atomic.Int32
	done  chan struct{}

	// owned by the output callback once the stream starts
	samples []float32
	cursor  int
}

// New creates an idle player on backend
func New(backend audio.Backend, log zerolog.Logger) *Player {
	return &Player{
		backend: backend,
		log:     log.With().Str("component", "playback").Logger(),
		done:    make(chan struct{}),
	}
}

// State returns the current lifecycle state
func (p *Player) State() State {
	return State(p.state.Load())
}

// Play streams clip to the default output device and blocks until the
// cursor passes the end of the clip or ctx is done.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	if !p.state.CompareAndSwap(int32(Idle), int32(Playing)) {
		return ErrNotIdle
	}

	stream, err := p.open(clip)
	if err != nil {
		p.state.Store(int32(Idle))
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		p.state.Store(int32(Idle))
		return fmt.Errorf("failed to start output stream: %w", err)
	}

	var result error
	select {
	case <-p.done:
		p.log.Info().Int("frames", clip.Frames()).Msg("Playback finished")
	case <-ctx.Done():
		result = ctx.Err()
	}

	if err := stream.Stop(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to stop output stream")
	}
	p.state.Store(int32(Done))
	return result
}

func (p *Player) open(clip audio.Clip) (audio.Stream, error) {
	dev, err := p.backend.DefaultOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to select output device: %w", err)
	}

	cfg, err := audio.Negotiate(dev)
	if err != nil {
		return nil, fmt.Errorf("failed to negotiate stream config: %w", err)
	}

	if clip.SampleRate > 0 && float64(clip.SampleRate) != cfg.SampleRate {
		p.log.Warn().
			Int("clip_rate", clip.SampleRate).
			Float64("device_rate", cfg.SampleRate).
			Msg("Clip sample rate differs from device, playing without resampling")
	}

	p.samples = fitChannels(clip, cfg.Channels)
	p.cursor = 0

	stream, err := p.backend.OpenOutput(dev, cfg, p.fill, p.onError)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	p.log.Info().
		Str("device", dev.Name).
		Int("channels", cfg.Channels).
		Float64("sample_rate", cfg.SampleRate).
		Msg("Playback started")

	return stream, nil
}

// fitChannels returns the clip interleaved for a device with the given
// channel count. Mismatched layouts are reduced to the first channel and
// copied to every device channel.
func fitChannels(clip audio.Clip, channels int) []float32 {
	if clip.Channels == channels {
		return clip.Samples
	}
	mono := clip.Mono()
	out := make([]float32, len(mono)*channels)
	audio.Interleave(out, mono, channels)
	return out
}

func (p *Player) fill(out []float32) {
	n := 0
	if p.cursor < len(p.samples) {
		n = copy(out, p.samples[p.cursor:])
	}
	// Reads past the end are silence.
	clear(out[n:])
	p.cursor += len(out)

	if p.cursor >= len(p.samples) && p.state.CompareAndSwap(int32(Playing), int32(Done)) {
		close(p.done)
	}
}

func (p *Player) onError(err error) {
	p.log.Warn().Err(err).Msg("Output stream error")
}
