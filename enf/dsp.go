package enf

import "math"

// fft computes an in-place iterative radix-2 FFT. The input length must
// be a power of two; callers zero-pad before invoking.
func fft(data []complex128) {
	n := len(data)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			data[i], data[j] = data[j], data[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wl := complex(math.Cos(angle), math.Sin(angle))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := data[start+k]
				v := data[start+k+length/2] * w
				data[start+k] = u + v
				data[start+k+length/2] = u - v
				w *= wl
			}
		}
	}
}

// nextPowerOfTwo returns the smallest power of two >= n.
func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// hammingWindow returns the Hamming window coefficients for size n.
func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// biquad is a single second-order IIR filter section in direct form I.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// newBandpass builds an RBJ cookbook constant-skirt bandpass biquad
// centered at centerFreq with the given bandwidth, both in Hz.
func newBandpass(centerFreq, bandwidth float64, sampleRate int) *biquad {
	w0 := 2 * math.Pi * centerFreq / float64(sampleRate)
	q := centerFreq / bandwidth
	alpha := math.Sin(w0) / (2 * q)

	a0 := 1 + alpha
	return &biquad{
		b0: alpha / a0,
		b1: 0,
		b2: -alpha / a0,
		a1: -2 * math.Cos(w0) / a0,
		a2: (1 - alpha) / a0,
	}
}

// bandpassFilter isolates the mains band by running the signal through
// the biquad twice for a steeper rolloff.
func bandpassFilter(samples []float64, centerFreq, bandwidth float64, sampleRate int) []float64 {
	out := make([]float64, len(samples))
	first := newBandpass(centerFreq, bandwidth, sampleRate)
	for i, s := range samples {
		out[i] = first.process(s)
	}
	second := newBandpass(centerFreq, bandwidth, sampleRate)
	for i, s := range out {
		out[i] = second.process(s)
	}
	return out
}

// magnitudeAt returns the FFT magnitude of bin k.
func magnitudeAt(spectrum []complex128, k int) float64 {
	if k < 0 || k >= len(spectrum) {
		return 0
	}
	return math.Hypot(real(spectrum[k]), imag(spectrum[k]))
}
