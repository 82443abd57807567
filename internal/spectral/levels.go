package spectral

// Band widths used by Levels
const (
	edgeBand   = 25
	centreHalf = 15
)

// Levels summarizes a spectrum as mean amplitudes of its low, centre and
// high bins plus the whole frame.
type Levels struct {
	Bass   float32 `json:"bass"`
	Mid    float32 `json:"mid"`
	Treble float32 `json:"treble"`
	Total  float32 `json:"total"`
}

// Trim drops margin bins from both ends of s. Consumers trim before
// interpreting a frame because the outermost bins carry transform edge
// artifacts. The result shares s's backing array.
func Trim(s Spectrum, margin int) Spectrum {
	if margin <= 0 {
		return s
	}
	if 2*margin >= len(s) {
		return s[:0]
	}
	return s[margin : len(s)-margin]
}

// Levels computes band means: the first 25 bins, the 30 bins around the
// centre, the last 25 bins, and all bins. Short spectra shrink the bands.
func (s Spectrum) Levels() Levels {
	n := len(s)
	if n == 0 {
		return Levels{}
	}

	edge := min(edgeBand, n)
	half := min(centreHalf, n/2)
	centre := n / 2

	lvl := Levels{
		Bass:   mean(s[:edge]),
		Treble: mean(s[n-edge:]),
		Total:  mean(s),
	}
	if half > 0 {
		lvl.Mid = mean(s[centre-half : centre+half])
	} else {
		lvl.Mid = s[centre]
	}
	return lvl
}

func mean(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	var sum float32
	for _, x := range v {
		sum += x
	}
	return sum / float32(len(v))
}
