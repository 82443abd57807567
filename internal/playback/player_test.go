package playback

import (
	"context"
	"testing"
	"time"

	"github.com/petems/spectra/internal/audio"
	"github.com/petems/spectra/internal/audio/audiotest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func play(t *testing.T, ctx context.Context, p *Player, b *audiotest.Backend, clip audio.Clip) (*audiotest.Stream, <-chan error) {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- p.Play(ctx, clip) }()

	var stream *audiotest.Stream
	select {
	case stream = <-b.Opened():
	case <-time.After(time.Second):
		t.Fatal("output stream was never opened")
	}
	require.Eventually(t, func() bool {
		return p.State() == Playing && !stream.Stopped()
	}, time.Second, time.Millisecond)
	return stream, errc
}

// pull retries until the stream has been started by Play
func pull(t *testing.T, s *audiotest.Stream, frames int) []float32 {
	t.Helper()
	var out []float32
	require.Eventually(t, func() bool {
		var err error
		out, err = s.Pull(frames)
		return err == nil
	}, time.Second, time.Millisecond)
	return out
}

func TestPlayStreamsClipThenSilence(t *testing.T) {
	b := audiotest.New()
	p := New(b, zerolog.Nop())
	assert.Equal(t, Idle, p.State())

	clip := audio.Clip{Samples: []float32{1, 2, 3, 4, 5, 6}, Channels: 2, SampleRate: 48000}
	stream, errc := play(t, context.Background(), p, b, clip)

	assert.Equal(t, []float32{1, 2, 3, 4}, pull(t, stream, 2))
	assert.Equal(t, []float32{5, 6, 0, 0}, pull(t, stream, 2))

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Play did not return after the clip ended")
	}
	assert.Equal(t, Done, p.State())
	assert.True(t, stream.Closed())
}

func TestPlayMonoClipOnStereoDevice(t *testing.T) {
	b := audiotest.New()
	p := New(b, zerolog.Nop())

	clip := audio.Clip{Samples: []float32{0.5, -0.5, 0.25}, Channels: 1, SampleRate: 44100}
	stream, errc := play(t, context.Background(), p, b, clip)

	assert.Equal(t, []float32{0.5, 0.5, -0.5, -0.5, 0.25, 0.25, 0, 0}, pull(t, stream, 4))
	require.NoError(t, <-errc)
}

func TestPlayEmptyClipFinishesOnFirstCallback(t *testing.T) {
	b := audiotest.New()
	p := New(b, zerolog.Nop())

	stream, errc := play(t, context.Background(), p, b, audio.Clip{Channels: 2})
	assert.Equal(t, []float32{0, 0}, pull(t, stream, 1))
	require.NoError(t, <-errc)
}

func TestPlayCancelled(t *testing.T) {
	b := audiotest.New()
	p := New(b, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	clip := audio.Clip{Samples: make([]float32, 1000), Channels: 2}
	stream, errc := play(t, ctx, p, b, clip)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.True(t, stream.Stopped())
	assert.Equal(t, Done, p.State())
}

func TestPlayOnlyFromIdle(t *testing.T) {
	b := audiotest.New()
	p := New(b, zerolog.Nop())

	stream, errc := play(t, context.Background(), p, b, audio.Clip{Samples: []float32{1, 1}, Channels: 2})
	assert.ErrorIs(t, p.Play(context.Background(), audio.Clip{}), ErrNotIdle)

	pull(t, stream, 1)
	require.NoError(t, <-errc)
	assert.ErrorIs(t, p.Play(context.Background(), audio.Clip{}), ErrNotIdle)
}

func TestPlayStartupFailureReturnsToIdle(t *testing.T) {
	b := audiotest.New()
	b.Output = nil
	p := New(b, zerolog.Nop())

	err := p.Play(context.Background(), audio.Clip{Channels: 1})
	assert.ErrorIs(t, err, audio.ErrDeviceUnavailable)
	assert.Equal(t, Idle, p.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "playing", Playing.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "state(9)", State(9).String())
}
