package audio

// FirstChannel copies channel 0 of every complete frame in interleaved into
// dst and returns it. dst is reused when it has enough capacity, so the
// capture callback does not allocate once warmed up.
func FirstChannel(dst, interleaved []float32, channels int) []float32 {
	if channels <= 0 {
		return dst[:0]
	}

	frames := len(interleaved) / channels
	if cap(dst) < frames {
		dst = make([]float32, frames)
	}
	dst = dst[:frames]

	if channels == 1 {
		copy(dst, interleaved[:frames])
		return dst
	}
	for i := range dst {
		dst[i] = interleaved[i*channels]
	}
	return dst
}

// Interleave spreads mono samples across every channel of out, the inverse
// used when playing a mono clip on a multi-channel device.
func Interleave(out, mono []float32, channels int) {
	for i, s := range mono {
		for c := 0; c < channels; c++ {
			out[i*channels+c] = s
		}
	}
}
