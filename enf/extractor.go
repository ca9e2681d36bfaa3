package enf

import (
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/soundproof/enfmesh/crypto"
)

// Band limits of the mains hum search range in Hz.
const (
	bandLow  = 45.0
	bandHigh = 65.0
)

// AudioTooShortError indicates the captured audio is shorter than the
// minimum the extractor needs. The caller must re-capture; there is no
// recovery for this extraction attempt.
type AudioTooShortError struct {
	Duration    time.Duration
	MinDuration time.Duration
}

func (e *AudioTooShortError) Error() string {
	return fmt.Sprintf("audio too short: got %s, need at least %s", e.Duration, e.MinDuration)
}

// ExtractorConfig controls the short-time analysis.
type ExtractorConfig struct {
	// MinDuration is the minimum audio length accepted.
	MinDuration time.Duration

	// WindowSize is the STFT window length in samples. Must be a power
	// of two.
	WindowSize int

	// HopSize is the STFT hop length in samples.
	HopSize int
}

// DefaultExtractorConfig returns the standard analysis parameters.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MinDuration: 5 * time.Second,
		WindowSize:  4096,
		HopSize:     2048,
	}
}

// Extractor turns raw audio samples into mains-hum fingerprints.
type Extractor struct {
	cfg    ExtractorConfig
	window []float64
}

// NewExtractor creates an extractor, filling zero config fields with
// defaults.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	def := DefaultExtractorConfig()
	if cfg.MinDuration == 0 {
		cfg.MinDuration = def.MinDuration
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.HopSize == 0 {
		cfg.HopSize = def.HopSize
	}
	return &Extractor{
		cfg:    cfg,
		window: hammingWindow(cfg.WindowSize),
	}
}

// Extract computes the mains-hum fingerprint of the given mono samples.
// Fails with AudioTooShortError when the audio is shorter than
// MinDuration.
func (e *Extractor) Extract(samples []float64, sampleRate int) (*Fingerprint, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	duration := time.Duration(float64(len(samples)) / float64(sampleRate) * float64(time.Second))
	if duration < e.cfg.MinDuration {
		return nil, &AudioTooShortError{Duration: duration, MinDuration: e.cfg.MinDuration}
	}

	// Isolate the 45-65 Hz band before any spectral analysis.
	center := (bandLow + bandHigh) / 2
	filtered := bandpassFilter(samples, center, bandHigh-bandLow, sampleRate)

	mains := detectMainsFrequency(filtered, sampleRate)

	vector := e.stftTrack(filtered, sampleRate, mains)
	if len(vector) == 0 {
		return nil, fmt.Errorf("audio yields no analysis frames at window size %d", e.cfg.WindowSize)
	}

	quality := extractionQuality(vector)
	normalizeMinMax(vector)

	return &Fingerprint{
		Vector:            vector,
		Hash:              hex.EncodeToString(crypto.DigestVector(vector)),
		MainsFrequency:    mains,
		ExtractionQuality: quality,
		Duration:          duration,
		SampleRate:        sampleRate,
		ExtractedAt:       time.Now().UTC(),
	}, nil
}

// detectMainsFrequency finds the dominant frequency in the mains band by
// locating the peak FFT bin and snapping to the nearer of 50 or 60 Hz.
func detectMainsFrequency(samples []float64, sampleRate int) float64 {
	n := nextPowerOfTwo(len(samples))
	buf := make([]complex128, n)
	for i, s := range samples {
		buf[i] = complex(s, 0)
	}
	fft(buf)

	resolution := float64(sampleRate) / float64(n)
	lowBin := int(math.Ceil(bandLow / resolution))
	highBin := int(math.Floor(bandHigh / resolution))
	if highBin >= n/2 {
		highBin = n/2 - 1
	}

	peakBin := lowBin
	peakMag := 0.0
	for k := lowBin; k <= highBin; k++ {
		if m := magnitudeAt(buf, k); m > peakMag {
			peakMag = m
			peakBin = k
		}
	}

	peakFreq := float64(peakBin) * resolution
	if math.Abs(peakFreq-50) <= math.Abs(peakFreq-60) {
		return 50
	}
	return 60
}

// stftTrack runs the sliding-window transform and records the magnitude
// at the bin nearest the detected mains frequency for every frame.
func (e *Extractor) stftTrack(samples []float64, sampleRate int, mains float64) []float64 {
	resolution := float64(sampleRate) / float64(e.cfg.WindowSize)
	targetBin := int(math.Round(mains / resolution))

	frameCount := 0
	if len(samples) >= e.cfg.WindowSize {
		frameCount = 1 + (len(samples)-e.cfg.WindowSize)/e.cfg.HopSize
	}

	track := make([]float64, 0, frameCount)
	frame := make([]complex128, e.cfg.WindowSize)
	for start := 0; start+e.cfg.WindowSize <= len(samples); start += e.cfg.HopSize {
		for i := 0; i < e.cfg.WindowSize; i++ {
			frame[i] = complex(samples[start+i]*e.window[i], 0)
		}
		fft(frame)
		track = append(track, magnitudeAt(frame, targetBin))
	}
	return track
}

// extractionQuality derives a coarse SNR proxy from the ratio of signal
// variance to mean, clamped to [0,1].
func extractionQuality(vector []float64) float64 {
	mean, variance := meanVariance(vector)
	if mean <= 0 {
		return 0
	}
	q := variance / mean
	if q > 1 {
		return 1
	}
	return q
}

func meanVariance(values []float64) (mean, variance float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, variance
}

// normalizeMinMax rescales the vector to [0,1] in place. A flat vector
// normalizes to all zeros.
func normalizeMinMax(vector []float64) {
	min, max := vector[0], vector[0]
	for _, v := range vector {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	span := max - min
	if span == 0 {
		for i := range vector {
			vector[i] = 0
		}
		return
	}
	for i := range vector {
		vector[i] = (vector[i] - min) / span
	}
}
