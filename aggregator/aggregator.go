// Package aggregator turns a pile of peer reports into a single robust
// confidence score. Reports come from mutually distrusting devices, so
// the aggregation verifies signatures, rejects statistical outliers with
// a robust (median-based) detector, and grades how tightly the surviving
// reports agree.
package aggregator

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/soundproof/enfmesh/metrics"
	"github.com/soundproof/enfmesh/protocol"
)

// ConsensusLevel summarizes how tightly peer reports agree.
type ConsensusLevel string

const (
	ConsensusHigh   ConsensusLevel = "high"
	ConsensusMedium ConsensusLevel = "medium"
	ConsensusLow    ConsensusLevel = "low"
)

// PeerScore records one surviving report's inclusion decision for audit.
type PeerScore struct {
	PeerID   string  `json:"peer_id"`
	Score    float64 `json:"score"`
	Included bool    `json:"included"`
}

// ConfidenceAggregation is the derived result of one aggregation run.
// Recomputed fresh on every call, never persisted by this package.
type ConfidenceAggregation struct {
	// AggregatedScore is the trimmed mean of non-outlier scores.
	AggregatedScore float64 `json:"aggregated_score"`

	// ReportCount is the number of reports included in the score.
	ReportCount int `json:"report_count"`

	// OutlierCount is the number of reports excluded as outliers.
	OutlierCount int `json:"outlier_count"`

	// StandardDeviation is the spread of the included scores.
	StandardDeviation float64 `json:"standard_deviation"`

	// ConsensusLevel grades agreement among included reports.
	ConsensusLevel ConsensusLevel `json:"consensus_level"`

	// PeerScores lists every verified report with its inclusion decision.
	PeerScores []PeerScore `json:"peer_scores"`
}

// InsufficientReportsError indicates too few reports to aggregate.
// The caller should retry after more discovery; the counts let it
// decide between waiting for more peers and abandoning.
type InsufficientReportsError struct {
	Got      int
	Required int
}

func (e *InsufficientReportsError) Error() string {
	return fmt.Sprintf("insufficient peer reports: got %d, need %d", e.Got, e.Required)
}

// Options controls one aggregation run. Use DefaultOptions as the base;
// the zero value disables signature verification.
type Options struct {
	// OutlierThreshold is the robust z-score above which a report is
	// excluded.
	OutlierThreshold float64

	// MinPeers is the minimum report count, checked before signature
	// filtering.
	MinPeers int

	// VerifySignatures drops reports whose signature fails against the
	// claimed ephemeral public key.
	VerifySignatures bool
}

// DefaultOptions returns the standard aggregation parameters.
func DefaultOptions() Options {
	return Options{
		OutlierThreshold: 2.0,
		MinPeers:         3,
		VerifySignatures: true,
	}
}

// Outlier detection constants. Scores live in [0,1]; deviations smaller
// than minOutlierDeviation never count as outliers no matter how tight
// the cluster is.
const (
	madScale            = 1.4826
	meanADScale         = 1.2533
	minOutlierDeviation = 0.1
)

// Aggregator aggregates peer reports into confidence scores.
type Aggregator struct {
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates an aggregator. Both arguments may be nil.
func New(log *slog.Logger, m *metrics.Metrics) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{log: log, metrics: m}
}

// Aggregate verifies, filters, and combines the given reports.
// Fails with InsufficientReportsError when fewer than MinPeers reports
// are supplied; all later filtering only shrinks the set silently.
func (a *Aggregator) Aggregate(reports []*protocol.PeerReport, opts Options) (*ConfidenceAggregation, error) {
	if opts.OutlierThreshold == 0 {
		opts.OutlierThreshold = DefaultOptions().OutlierThreshold
	}
	if opts.MinPeers == 0 {
		opts.MinPeers = DefaultOptions().MinPeers
	}

	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.AggregationDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if len(reports) < opts.MinPeers {
		return nil, &InsufficientReportsError{Got: len(reports), Required: opts.MinPeers}
	}

	// Signature filtering: a malicious peer's bad report must never
	// abort the run, so failures are logged and dropped.
	verified := reports
	if opts.VerifySignatures {
		verified = make([]*protocol.PeerReport, 0, len(reports))
		for _, r := range reports {
			if err := protocol.VerifyReport(r); err != nil {
				a.log.Warn("dropping report with invalid signature",
					"report", r.ID, "peer", r.PeerEphemeralID)
				if a.metrics != nil {
					a.metrics.ReportsRejected.Inc()
				}
				continue
			}
			verified = append(verified, r)
		}
	}

	scores := make([]float64, len(verified))
	for i, r := range verified {
		scores[i] = r.ConfidenceScore
	}

	outlier := flagOutliers(scores, opts.OutlierThreshold)

	peerScores := make([]PeerScore, len(verified))
	included := make([]float64, 0, len(verified))
	outlierCount := 0
	for i, r := range verified {
		peerScores[i] = PeerScore{
			PeerID:   r.PeerEphemeralID,
			Score:    r.ConfidenceScore,
			Included: !outlier[i],
		}
		if outlier[i] {
			outlierCount++
			continue
		}
		included = append(included, r.ConfidenceScore)
	}

	if a.metrics != nil && outlierCount > 0 {
		a.metrics.OutliersFlagged.Add(float64(outlierCount))
	}

	mean, stddev := meanStddev(included)

	return &ConfidenceAggregation{
		AggregatedScore:   mean,
		ReportCount:       len(included),
		OutlierCount:      outlierCount,
		StandardDeviation: stddev,
		ConsensusLevel:    consensusLevel(mean, stddev),
		PeerScores:        peerScores,
	}, nil
}

// flagOutliers marks scores whose robust z-score exceeds the threshold.
//
// The detector is median/MAD based rather than mean/stddev based: with a
// plain z-score the maximum attainable value for n reports is sqrt(n-1),
// so a single liar among five honest peers lands just under the default
// threshold of 2.0 and is never rejected. Deviations from the median are
// scaled by 1.4826*MAD (falling back to 1.2533*mean absolute deviation
// when the MAD degenerates to zero); a zero scale means no outliers.
// Tiny absolute deviations are always tolerated so a tight cluster is
// never trimmed.
func flagOutliers(scores []float64, threshold float64) []bool {
	flags := make([]bool, len(scores))
	if len(scores) < 3 {
		return flags
	}

	med := median(scores)

	deviations := make([]float64, len(scores))
	for i, s := range scores {
		deviations[i] = math.Abs(s - med)
	}

	scale := madScale * median(deviations)
	if scale == 0 {
		var meanAD float64
		for _, d := range deviations {
			meanAD += d
		}
		scale = meanADScale * meanAD / float64(len(deviations))
	}
	if scale == 0 {
		return flags
	}

	for i, d := range deviations {
		if d/scale > threshold && d > minOutlierDeviation {
			flags[i] = true
		}
	}
	return flags
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func meanStddev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// consensusLevel grades agreement by coefficient of variation and the
// aggregated score itself.
func consensusLevel(mean, stddev float64) ConsensusLevel {
	if mean <= 0 {
		return ConsensusLow
	}
	cv := stddev / mean
	switch {
	case cv < 0.1 && mean >= 0.7:
		return ConsensusHigh
	case cv < 0.3 && mean >= 0.5:
		return ConsensusMedium
	default:
		return ConsensusLow
	}
}
