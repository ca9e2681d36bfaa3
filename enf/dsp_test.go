package enf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFFTPeakBin(t *testing.T) {
	const n = 1024
	const bin = 37

	data := make([]complex128, n)
	for i := range data {
		data[i] = complex(math.Sin(2*math.Pi*float64(bin)*float64(i)/n), 0)
	}
	fft(data)

	peak := 0
	for k := 1; k < n/2; k++ {
		if magnitudeAt(data, k) > magnitudeAt(data, peak) {
			peak = k
		}
	}
	assert.Equal(t, bin, peak)
}

func TestFFTLinearity(t *testing.T) {
	const n = 256
	a := make([]complex128, n)
	b := make([]complex128, n)
	sum := make([]complex128, n)
	for i := 0; i < n; i++ {
		a[i] = complex(math.Sin(2*math.Pi*3*float64(i)/n), 0)
		b[i] = complex(math.Cos(2*math.Pi*9*float64(i)/n), 0)
		sum[i] = a[i] + b[i]
	}

	fft(a)
	fft(b)
	fft(sum)

	for k := 0; k < n; k++ {
		assert.InDelta(t, real(a[k])+real(b[k]), real(sum[k]), 1e-9)
		assert.InDelta(t, imag(a[k])+imag(b[k]), imag(sum[k]), 1e-9)
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	assert.Equal(t, 1, nextPowerOfTwo(1))
	assert.Equal(t, 2, nextPowerOfTwo(2))
	assert.Equal(t, 4, nextPowerOfTwo(3))
	assert.Equal(t, 1024, nextPowerOfTwo(1000))
}

func TestHammingWindowShape(t *testing.T) {
	w := hammingWindow(128)

	// Symmetric, peaked at the center, minimum 0.08 at the edges.
	assert.InDelta(t, 0.08, w[0], 1e-9)
	assert.InDelta(t, w[0], w[len(w)-1], 1e-9)
	assert.Greater(t, w[64], w[0])
}

func TestBandpassAttenuatesOutOfBand(t *testing.T) {
	const sampleRate = 8000
	const n = sampleRate * 2

	inBand := make([]float64, n)
	outOfBand := make([]float64, n)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		inBand[i] = math.Sin(2 * math.Pi * 55 * t)
		outOfBand[i] = math.Sin(2 * math.Pi * 440 * t)
	}

	energy := func(xs []float64) float64 {
		var e float64
		for _, x := range xs[sampleRate:] { // skip filter transient
			e += x * x
		}
		return e
	}

	filteredIn := bandpassFilter(inBand, 55, 20, sampleRate)
	filteredOut := bandpassFilter(outOfBand, 55, 20, sampleRate)

	assert.Greater(t, energy(filteredIn), 100*energy(filteredOut))
}
