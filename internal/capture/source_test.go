package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/petems/spectra/internal/audio"
	"github.com/petems/spectra/internal/audio/audiotest"
	"github.com/petems/spectra/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingObserver struct {
	mu       sync.Mutex
	accepted int
	dropped  int
	errs     []error
}

func (o *recordingObserver) SamplesCaptured(accepted, dropped int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accepted += accepted
	o.dropped += dropped
}

func (o *recordingObserver) DeviceError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

// start runs src in the background and waits for its stream to open
func start(t *testing.T, b *audiotest.Backend, src *Source) (*audiotest.Stream, <-chan error) {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- src.Run(context.Background()) }()

	select {
	case s := <-b.Opened():
		// Start is called right after open; wait for it so Deliver succeeds.
		require.Eventually(t, func() bool {
			return s.Deliver(nil) == nil
		}, time.Second, time.Millisecond)
		return s, errc
	case err := <-errc:
		t.Fatalf("Run returned before opening a stream: %v", err)
	case <-time.After(time.Second):
		t.Fatal("stream was never opened")
	}
	return nil, nil
}

func TestSourceExtractsFirstChannelInOrder(t *testing.T) {
	b := audiotest.New()
	q := queue.New(64, queue.DropNewest, 0)
	obs := &recordingObserver{}
	src := New(b, q, WithObserver(obs))

	stream, errc := start(t, b, src)
	assert.Equal(t, 2, stream.Config.Channels)
	assert.Equal(t, 48000.0, stream.Config.SampleRate)

	require.NoError(t, stream.Deliver([]float32{1, -1, 2, -2, 3, -3}))
	require.NoError(t, stream.Deliver([]float32{4, -4}))

	src.Stop()
	require.NoError(t, <-errc)

	var got []float32
	for s := range q.C() {
		got = append(got, s)
	}
	assert.Equal(t, []float32{1, 2, 3, 4}, got)
	assert.Equal(t, 4, obs.accepted)
	assert.True(t, stream.Closed())
	assert.Equal(t, 48000.0, src.Config().SampleRate)
}

func TestSourceCountsDrops(t *testing.T) {
	b := audiotest.New()
	q := queue.New(2, queue.DropNewest, 0)
	obs := &recordingObserver{}
	src := New(b, q, WithObserver(obs))

	stream, errc := start(t, b, src)
	require.NoError(t, stream.Deliver([]float32{1, 0, 2, 0, 3, 0, 4, 0}))

	src.Stop()
	require.NoError(t, <-errc)

	assert.Equal(t, 2, obs.accepted)
	assert.Equal(t, 2, obs.dropped)
	assert.Equal(t, uint64(2), q.Dropped())
}

func TestSourceBlockingSinkBoundsCallback(t *testing.T) {
	const timeout = 2 * time.Millisecond
	b := audiotest.New()
	q := queue.New(16, queue.Block, timeout)
	obs := &recordingObserver{}
	src := New(b, q, WithObserver(obs))

	stream, errc := start(t, b, src)

	// 1024 stereo frames into a queue nobody reads
	began := time.Now()
	require.NoError(t, stream.Deliver(make([]float32, 2*1024)))
	elapsed := time.Since(began)

	src.Stop()
	require.NoError(t, <-errc)

	assert.Less(t, elapsed, 250*time.Millisecond)
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 16, obs.accepted)
	assert.Equal(t, 1008, obs.dropped)
}

func TestSourceReportsDeviceErrorsWithoutStopping(t *testing.T) {
	b := audiotest.New()
	q := queue.New(8, queue.DropNewest, 0)
	obs := &recordingObserver{}
	src := New(b, q, WithObserver(obs))

	stream, errc := start(t, b, src)
	stream.Fail(audio.ErrInputOverflow)
	require.NoError(t, stream.Deliver([]float32{5, 0}))

	src.Stop()
	require.NoError(t, <-errc)

	require.Len(t, obs.errs, 1)
	assert.ErrorIs(t, obs.errs[0], audio.ErrInputOverflow)
	assert.Equal(t, 1, obs.accepted)
}

func TestSourceStopsOnContextCancel(t *testing.T) {
	b := audiotest.New()
	q := queue.New(8, queue.DropNewest, 0)
	src := New(b, q)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- src.Run(ctx) }()

	stream := <-b.Opened()
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, stream.Stopped())

	_, ok := <-q.C()
	assert.False(t, ok, "sink should be closed")
}

func TestSourceStopIsIdempotent(t *testing.T) {
	b := audiotest.New()
	q := queue.New(8, queue.DropNewest, 0)
	src := New(b, q)

	// Stop before Run still ends Run once the stream is up.
	src.Stop()
	src.Stop()

	errc := make(chan error, 1)
	go func() { errc <- src.Run(context.Background()) }()
	<-b.Opened()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.NotPanics(t, src.Stop)
}

func TestSourceStartupErrors(t *testing.T) {
	openErr := errors.New("device busy")

	tests := []struct {
		name    string
		setup   func(b *audiotest.Backend)
		opts    []Option
		wantErr error
	}{
		{
			name:    "no default input",
			setup:   func(b *audiotest.Backend) { b.Input = nil },
			wantErr: audio.ErrDeviceUnavailable,
		},
		{
			name:    "unknown device",
			opts:    []Option{WithDevice("nope")},
			wantErr: audio.ErrDeviceUnavailable,
		},
		{
			name: "integer only device",
			setup: func(b *audiotest.Backend) {
				b.Input.Configs = []audio.StreamConfig{{Channels: 1, Format: audio.FormatS16, SampleRate: 44100, MaxSampleRate: 44100}}
			},
			wantErr: audio.ErrUnsupportedFormat,
		},
		{
			name:    "open fails",
			setup:   func(b *audiotest.Backend) { b.OpenErr = openErr },
			wantErr: openErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := audiotest.New()
			if tt.setup != nil {
				tt.setup(b)
			}
			q := queue.New(8, queue.DropNewest, 0)
			src := New(b, q, tt.opts...)

			err := src.Run(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)

			_, ok := <-q.C()
			assert.False(t, ok, "sink should be closed on startup failure")
		})
	}
}

func TestSourceSelectsDeviceByName(t *testing.T) {
	b := audiotest.New()
	q := queue.New(8, queue.DropNewest, 0)
	src := New(b, q, WithDevice("Fake Input"))
	src.Stop()

	errc := make(chan error, 1)
	go func() { errc <- src.Run(context.Background()) }()
	<-b.Opened()
	require.NoError(t, <-errc)
}
