package spectral

import (
	"fmt"
	"math"
	"strings"

	"github.com/mjibson/go-dsp/window"
	"github.com/petems/spectra/internal/config"
)

// SmoothingPolicy decides what to do with a blend weight outside [0, 1]
type SmoothingPolicy int

const (
	// PassThrough uses the weight as given; out-of-range weights produce
	// out-of-range magnitudes
	PassThrough SmoothingPolicy = iota
	// Clamp limits the weight to [0, 1]
	Clamp
	// Reject fails construction
	Reject
)

// ParseSmoothingPolicy maps a config name to a SmoothingPolicy
func ParseSmoothingPolicy(name string) (SmoothingPolicy, error) {
	switch name {
	case "", config.SmoothingPassThrough:
		return PassThrough, nil
	case config.SmoothingClamp:
		return Clamp, nil
	case config.SmoothingReject:
		return Reject, nil
	default:
		return 0, fmt.Errorf("unknown smoothing policy %q", name)
	}
}

func (p SmoothingPolicy) apply(s float32) (float32, error) {
	inRange := s >= 0 && s <= 1
	switch p {
	case Clamp:
		if math.IsNaN(float64(s)) {
			return 0, fmt.Errorf("smoothing is NaN")
		}
		return min(max(s, 0), 1), nil
	case Reject:
		if !inRange {
			return 0, fmt.Errorf("smoothing %v outside [0, 1]", s)
		}
	}
	return s, nil
}

// taperCoefficients returns the window function for name, or nil for a
// rectangular window.
func taperCoefficients(name string, size int) ([]float64, error) {
	switch strings.ToLower(name) {
	case "", "none", "rectangular":
		return nil, nil
	case "hann":
		return window.Hann(size), nil
	case "hamming":
		return window.Hamming(size), nil
	case "blackman":
		return window.Blackman(size), nil
	default:
		return nil, fmt.Errorf("unknown taper %q", name)
	}
}

// OptionsFromConfig maps the analyzer config section onto Options
func OptionsFromConfig(cfg config.AnalyzerConfig) (Options, error) {
	policy, err := ParseSmoothingPolicy(cfg.SmoothingPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Window:    cfg.Window,
		Smoothing: cfg.Smoothing,
		Policy:    policy,
		Taper:     cfg.Taper,
		Queue:     cfg.SpectrumQueue,
	}, nil
}
