// Package spectral turns a stream of audio samples into smoothed magnitude
// spectra.
//
// Samples are accumulated into an analysis window of 2×Window complex slots.
// Each full window is transformed in place with a forward FFT, and the two
// halves of the result are folded into a single Window-bin spectrum:
//
//	spectrum[i] = |X[i]|*s + |X[Window+i]|*(1-s)
//
// For real input the upper half mirrors the lower one, so the blend
// averages two readings of the same transform rather than smoothing across
// time. The analyzer keeps no state between windows.
package spectral

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/dsp/fourier"
)

// DefaultWindow is the reference number of bins per spectrum
const DefaultWindow = 512

// Spectrum is one frame of non-negative magnitudes, one per bin
type Spectrum []float32

// Observer is notified after every emitted spectrum
type Observer interface {
	SpectrumEmitted(took time.Duration)
}

// Options configures an Analyzer
type Options struct {
	// Window is the number of bins per spectrum; the transform spans 2×Window samples
	Window int
	// Smoothing is the blend weight of the lower half, normally in [0, 1]
	Smoothing float32
	Policy    SmoothingPolicy
	// Taper names an optional window function: "none", "hann", "hamming", "blackman"
	Taper string
	// Queue is the spectrum channel capacity
	Queue int

	Logger   zerolog.Logger
	Observer Observer
}

// Analyzer accumulates samples and emits spectra. The window and cursor
// are touched only by the goroutine calling Write or Run.
type Analyzer struct {
	bins      int
	smoothing float32

	window []complex128
	cursor int
	fft    *fourier.CmplxFFT
	taper  []float64

	low  []float32
	high []float32

	out      chan Spectrum
	log      zerolog.Logger
	observer Observer
}

// New validates opts and allocates the analysis window
func New(opts Options) (*Analyzer, error) {
	if opts.Window == 0 {
		opts.Window = DefaultWindow
	}
	if opts.Window < 0 || opts.Window&(opts.Window-1) != 0 {
		return nil, fmt.Errorf("window must be a positive power of two, got %d", opts.Window)
	}
	if opts.Queue < 0 {
		return nil, fmt.Errorf("spectrum queue must not be negative, got %d", opts.Queue)
	}

	smoothing, err := opts.Policy.apply(opts.Smoothing)
	if err != nil {
		return nil, err
	}

	size := 2 * opts.Window
	taper, err := taperCoefficients(opts.Taper, size)
	if err != nil {
		return nil, err
	}

	return &Analyzer{
		bins:      opts.Window,
		smoothing: smoothing,
		window:    make([]complex128, size),
		fft:       fourier.NewCmplxFFT(size),
		taper:     taper,
		low:       make([]float32, opts.Window),
		high:      make([]float32, opts.Window),
		out:       make(chan Spectrum, opts.Queue),
		log:       opts.Logger.With().Str("component", "analyzer").Logger(),
		observer:  opts.Observer,
	}, nil
}

// Bins returns the length of every emitted spectrum
func (a *Analyzer) Bins() int {
	return a.bins
}

// Smoothing returns the effective blend weight
func (a *Analyzer) Smoothing() float32 {
	return a.smoothing
}

// Write adds one sample to the window. When the sample completes the
// window it returns the resulting spectrum and true.
func (a *Analyzer) Write(sample float32) (Spectrum, bool) {
	v := float64(sample)
	if a.taper != nil {
		v *= a.taper[a.cursor]
	}
	a.window[a.cursor] = complex(v, 0)
	a.cursor++

	if a.cursor < len(a.window) {
		return nil, false
	}
	a.cursor = 0
	return a.transform(), true
}

// Pending returns the number of samples in the current partial window
func (a *Analyzer) Pending() int {
	return a.cursor
}

func (a *Analyzer) transform() Spectrum {
	start := time.Now()

	a.fft.Coefficients(a.window, a.window)

	for i := 0; i < a.bins; i++ {
		a.low[i] = float32(cmplx.Abs(a.window[i]))
		a.high[i] = float32(cmplx.Abs(a.window[a.bins+i]))
	}
	spectrum := Blend(a.low, a.high, a.smoothing)

	if a.observer != nil {
		a.observer.SpectrumEmitted(time.Since(start))
	}
	return spectrum
}

// Run consumes in until it is closed or ctx is done, sending one spectrum
// per completed window. A trailing partial window is discarded. The
// spectrum channel is closed on return.
func (a *Analyzer) Run(ctx context.Context, in <-chan float32) {
	defer close(a.out)

	emitted := 0
	defer func() {
		a.log.Debug().Int("spectra", emitted).Int("discarded", a.cursor).Msg("Analyzer stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-in:
			if !ok {
				return
			}
			spectrum, ready := a.Write(sample)
			if !ready {
				continue
			}
			// A consumer that went away shows up as ctx cancellation,
			// which ends the loop quietly.
			select {
			case a.out <- spectrum:
				emitted++
			case <-ctx.Done():
				return
			}
		}
	}
}

// Spectra returns the consumer end of the spectrum channel
func (a *Analyzer) Spectra() <-chan Spectrum {
	return a.out
}

// Next blocks until the next spectrum is available. It returns false at
// end of stream or when ctx is done.
func (a *Analyzer) Next(ctx context.Context) (Spectrum, bool) {
	select {
	case s, ok := <-a.out:
		return s, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Blend folds two magnitude halves into a fresh spectrum:
// out[i] = low[i]*s + high[i]*(1-s). Mismatched lengths are a programming
// error and panic.
func Blend(low, high []float32, s float32) Spectrum {
	if len(low) != len(high) {
		panic(fmt.Sprintf("spectral: magnitude halves differ in length (%d != %d)", len(low), len(high)))
	}

	out := make(Spectrum, len(low))
	for i := range low {
		out[i] = low[i]*s + high[i]*(1-s)
	}
	return out
}

// Peak returns the index and value of the largest bin, or -1 for an empty spectrum
func (s Spectrum) Peak() (int, float32) {
	idx, best := -1, float32(math.Inf(-1))
	for i, v := range s {
		if v > best {
			idx, best = i, v
		}
	}
	if idx < 0 {
		return -1, 0
	}
	return idx, best
}
