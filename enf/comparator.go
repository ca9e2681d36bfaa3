package enf

import (
	"errors"
	"math"
	"time"
)

// ConfidenceLevel is the comparator's coarse trust bucket for a score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// Proximity buckets the estimated physical distance between two capture
// locations based on how well their hum tracks align.
type Proximity string

const (
	ProximitySameLocation Proximity = "same_location"
	ProximityNearby       Proximity = "nearby"
	ProximityDistant      Proximity = "distant"
	ProximityUnknown      Proximity = "unknown"
)

// Comparison is the result of scoring two fingerprints against each other.
type Comparison struct {
	// Similarity is the blended alignment score in [0,1].
	Similarity float64 `json:"similarity"`

	// Correlation is the best cross-correlation value found.
	Correlation float64 `json:"correlation"`

	// Confidence reflects similarity weighted by extraction quality.
	Confidence ConfidenceLevel `json:"confidence"`

	// TimeOffsetFrames is the frame shift of b that best aligns it to a.
	TimeOffsetFrames int `json:"time_offset_frames"`

	// TimeOffset is the frame shift expressed in recording time.
	TimeOffset time.Duration `json:"time_offset,string"`

	// Proximity estimates how close the two capture locations were.
	Proximity Proximity `json:"proximity"`
}

// Comparison thresholds. Confidence thresholds apply to
// similarity x average extraction quality; proximity thresholds combine
// similarity with offset magnitude.
const (
	confidenceHighThreshold   = 0.7
	confidenceMediumThreshold = 0.4

	sameLocationSimilarity = 0.9
	sameLocationMaxOffset  = 2
	nearbySimilarity       = 0.7
	nearbyMaxOffset        = 10
	distantSimilarity      = 0.4

	// Grids differing by more than this many Hz cannot correlate.
	maxMainsFrequencyDelta = 5
)

// Compare scores the similarity between two fingerprints.
//
// The offset search realigns b against a, so Compare(a, b) and
// Compare(b, a) are not guaranteed to produce numerically identical
// results. The asymmetry is accepted; callers that need a canonical
// score should fix the argument order.
func Compare(a, b *Fingerprint) (*Comparison, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	// Different grids cannot correlate: short-circuit to zero.
	if math.Abs(a.MainsFrequency-b.MainsFrequency) > maxMainsFrequencyDelta {
		return &Comparison{
			Similarity:  0,
			Correlation: 0,
			Confidence:  ConfidenceLow,
			Proximity:   ProximityUnknown,
		}, nil
	}

	shorter := len(a.Vector)
	if len(b.Vector) < shorter {
		shorter = len(b.Vector)
	}
	if shorter == 0 {
		return nil, errors.New("empty fingerprint vector")
	}

	maxOffset := shorter / 2
	bestOffset, bestCorr := bestAlignment(a.Vector, b.Vector, maxOffset)

	cosine := cosineSimilarityAt(a.Vector, b.Vector, bestOffset)

	similarity := (bestCorr + cosine) / 2
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}

	avgQuality := (a.ExtractionQuality + b.ExtractionQuality) / 2
	weighted := similarity * avgQuality

	confidence := ConfidenceLow
	switch {
	case weighted >= confidenceHighThreshold:
		confidence = ConfidenceHigh
	case weighted >= confidenceMediumThreshold:
		confidence = ConfidenceMedium
	}

	return &Comparison{
		Similarity:       similarity,
		Correlation:      bestCorr,
		Confidence:       confidence,
		TimeOffsetFrames: bestOffset,
		TimeOffset:       time.Duration(bestOffset) * a.FrameInterval(),
		Proximity:        proximityEstimate(similarity, bestOffset),
	}, nil
}

// bestAlignment searches offsets in [-maxOffset, maxOffset] for the shift
// of b that maximizes normalized cross-correlation with a.
func bestAlignment(a, b []float64, maxOffset int) (offset int, correlation float64) {
	correlation = math.Inf(-1)
	for off := -maxOffset; off <= maxOffset; off++ {
		c, n := correlationAt(a, b, off)
		if n < 2 {
			continue
		}
		if c > correlation {
			correlation = c
			offset = off
		}
	}
	if math.IsInf(correlation, -1) {
		return 0, 0
	}
	return offset, correlation
}

// correlationAt computes the Pearson correlation between a and b shifted
// by off, over their overlapping region. Returns the correlation and the
// overlap length.
func correlationAt(a, b []float64, off int) (float64, int) {
	var xs, ys []float64
	for i := range a {
		j := i - off
		if j < 0 || j >= len(b) {
			continue
		}
		xs = append(xs, a[i])
		ys = append(ys, b[j])
	}
	n := len(xs)
	if n < 2 {
		return 0, n
	}

	meanX, varX := meanVariance(xs)
	meanY, varY := meanVariance(ys)
	if varX == 0 || varY == 0 {
		// Flat overlap: identical flat segments count as aligned.
		if varX == 0 && varY == 0 && meanX == meanY {
			return 1, n
		}
		return 0, n
	}

	var cov float64
	for i := range xs {
		cov += (xs[i] - meanX) * (ys[i] - meanY)
	}
	cov /= float64(n)

	return cov / math.Sqrt(varX*varY), n
}

// cosineSimilarityAt computes cosine similarity between a and b after
// shifting b by off, over the overlapping region.
func cosineSimilarityAt(a, b []float64, off int) float64 {
	var dot, normA, normB float64
	count := 0
	for i := range a {
		j := i - off
		if j < 0 || j >= len(b) {
			continue
		}
		dot += a[i] * b[j]
		normA += a[i] * a[i]
		normB += b[j] * b[j]
		count++
	}
	if count == 0 || normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func proximityEstimate(similarity float64, offset int) Proximity {
	abs := offset
	if abs < 0 {
		abs = -abs
	}
	switch {
	case similarity >= sameLocationSimilarity && abs <= sameLocationMaxOffset:
		return ProximitySameLocation
	case similarity >= nearbySimilarity && abs <= nearbyMaxOffset:
		return ProximityNearby
	case similarity >= distantSimilarity:
		return ProximityDistant
	default:
		return ProximityUnknown
	}
}
