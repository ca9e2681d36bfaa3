package testutil

import (
	"encoding/hex"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/soundproof/enfmesh/crypto"
	"github.com/soundproof/enfmesh/enf"
	"github.com/soundproof/enfmesh/protocol"
)

// =====================================
// Crypto Generators
// =====================================

// GenerateTestKeyPair generates an ephemeral key pair for testing.
func GenerateTestKeyPair() (crypto.PublicKey, crypto.PrivateKey, error) {
	return crypto.GenerateKeyPair()
}

// =====================================
// Fingerprint Generators
// =====================================

// FingerprintOption is a function that modifies a test fingerprint.
type FingerprintOption func(*enf.Fingerprint)

// WithMainsFrequency sets the detected grid frequency.
func WithMainsFrequency(freq float64) FingerprintOption {
	return func(fp *enf.Fingerprint) {
		fp.MainsFrequency = freq
	}
}

// WithQuality sets the extraction quality.
func WithQuality(q float64) FingerprintOption {
	return func(fp *enf.Fingerprint) {
		fp.ExtractionQuality = q
	}
}

// WithVector sets the fingerprint vector.
func WithVector(v []float64) FingerprintOption {
	return func(fp *enf.Fingerprint) {
		fp.Vector = v
	}
}

// GenerateTestFingerprint creates a plausible mains-hum fingerprint with
// a smoothly drifting vector.
func GenerateTestFingerprint(options ...FingerprintOption) *enf.Fingerprint {
	const frames = 96
	vector := make([]float64, frames)
	for i := range vector {
		vector[i] = 0.5 +
			0.25*math.Sin(2*math.Pi*float64(i)/24) +
			0.25*math.Sin(2*math.Pi*float64(i)/7.3)
	}

	fp := &enf.Fingerprint{
		Vector:            vector,
		MainsFrequency:    50,
		ExtractionQuality: 0.9,
		Duration:          frames * 256 * time.Millisecond,
		SampleRate:        8000,
		ExtractedAt:       time.Now().UTC(),
	}

	for _, option := range options {
		option(fp)
	}

	fp.Hash = hex.EncodeToString(crypto.DigestVector(fp.Vector))
	return fp
}

// =====================================
// Report Generators
// =====================================

// ReportOption is a function that modifies a test peer report.
type ReportOption func(*protocol.PeerReport)

// WithScore sets the report's confidence score.
func WithScore(score float64) ReportOption {
	return func(r *protocol.PeerReport) {
		r.ConfidenceScore = score
	}
}

// WithMediaItem sets the media item the report refers to.
func WithMediaItem(id string) ReportOption {
	return func(r *protocol.PeerReport) {
		r.MediaItemID = id
	}
}

// WithProximity sets the report's proximity judgment.
func WithProximity(p protocol.ProximityLevel) ReportOption {
	return func(r *protocol.PeerReport) {
		r.ProximityLevel = p
	}
}

// WithTimestamp sets the report timestamp.
func WithTimestamp(ts time.Time) ReportOption {
	return func(r *protocol.PeerReport) {
		r.Timestamp = ts
	}
}

// GenerateSignedReport creates a peer report signed with a fresh
// ephemeral key. Options apply before signing.
func GenerateSignedReport(options ...ReportOption) (*protocol.PeerReport, error) {
	_, privKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	report := &protocol.PeerReport{
		ID:              uuid.NewString(),
		MediaItemID:     "test-media",
		PeerEphemeralID: uuid.NewString(),
		ConfidenceScore: 0.9,
		Timestamp:       time.Now().UTC(),
		PeerAddress:     "sim://peer",
		ProximityLevel:  protocol.ProximityNear,
	}

	for _, option := range options {
		option(report)
	}

	if err := protocol.SignReport(report, privKey); err != nil {
		return nil, err
	}
	return report, nil
}

// GenerateReportSet creates one signed report per score.
func GenerateReportSet(scores ...float64) ([]*protocol.PeerReport, error) {
	reports := make([]*protocol.PeerReport, 0, len(scores))
	for _, score := range scores {
		r, err := GenerateSignedReport(WithScore(score))
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// CorruptSignature flips a byte of the report signature so verification
// fails while the payload stays intact.
func CorruptSignature(r *protocol.PeerReport) {
	if len(r.Signature) > 0 {
		r.Signature[0] ^= 0xFF
	}
}
