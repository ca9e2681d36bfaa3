package enf

import (
	"errors"
	"time"
)

// Fingerprint is a compact mains-hum signature of one captured recording.
// Created once per recording and immutable thereafter.
type Fingerprint struct {
	// Vector is the ordered sequence of normalized mains-bin magnitudes,
	// one per analysis frame. Always non-empty for a valid fingerprint.
	Vector []float64 `json:"vector"`

	// Hash is the hex-encoded content digest of Vector, used as a
	// dedup/lookup key.
	Hash string `json:"hash"`

	// MainsFrequency is the detected grid frequency, 50 or 60.
	MainsFrequency float64 `json:"mains_frequency"`

	// ExtractionQuality is a coarse SNR proxy in [0,1].
	ExtractionQuality float64 `json:"extraction_quality"`

	// Duration is the length of the analyzed audio.
	Duration time.Duration `json:"duration,string"`

	// SampleRate is the audio sample rate in Hz.
	SampleRate int `json:"sample_rate"`

	// ExtractedAt records when the extraction ran.
	ExtractedAt time.Time `json:"extracted_at"`
}

// Validate checks the structural invariants of a fingerprint.
func (fp *Fingerprint) Validate() error {
	if fp == nil {
		return errors.New("nil fingerprint")
	}
	if len(fp.Vector) == 0 {
		return errors.New("empty fingerprint vector")
	}
	if fp.MainsFrequency != 50 && fp.MainsFrequency != 60 {
		return errors.New("mains frequency must be 50 or 60")
	}
	if fp.ExtractionQuality < 0 || fp.ExtractionQuality > 1 {
		return errors.New("extraction quality out of range [0,1]")
	}
	return nil
}

// FrameInterval is the approximate time between adjacent vector entries.
func (fp *Fingerprint) FrameInterval() time.Duration {
	if len(fp.Vector) == 0 {
		return 0
	}
	return fp.Duration / time.Duration(len(fp.Vector))
}
