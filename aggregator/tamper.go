package aggregator

// RiskLevel grades how suspicious an aggregation result looks.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// TamperAssessment is the analyzer's verdict on one aggregation.
type TamperAssessment struct {
	RiskLevel       RiskLevel `json:"risk_level"`
	TamperingLikely bool      `json:"tampering_likely"`
	Indicators      []string  `json:"indicators"`
	OutlierRatio    float64   `json:"outlier_ratio"`
}

// Tamper analysis thresholds.
const (
	tamperScoreThreshold   = 0.3
	tamperOutlierRatio     = 0.3
	tamperSpreadThreshold  = 0.3
	tamperLikelyIndicators = 2
)

// AnalyzeTamperRisk inspects an aggregation for signs that the audio does
// not match its claimed recording context. Pure function of the
// aggregation; callers decide what to do with a high-risk verdict.
func AnalyzeTamperRisk(agg *ConfidenceAggregation) *TamperAssessment {
	var indicators []string

	if agg.AggregatedScore < tamperScoreThreshold {
		indicators = append(indicators, "low_aggregated_score")
	}
	if agg.ConsensusLevel == ConsensusLow {
		indicators = append(indicators, "low_consensus")
	}

	var outlierRatio float64
	if total := agg.ReportCount + agg.OutlierCount; total > 0 {
		outlierRatio = float64(agg.OutlierCount) / float64(total)
	}
	if outlierRatio > tamperOutlierRatio {
		indicators = append(indicators, "high_outlier_ratio")
	}
	if agg.StandardDeviation > tamperSpreadThreshold {
		indicators = append(indicators, "high_score_spread")
	}

	risk := RiskLow
	switch {
	case len(indicators) >= 3:
		risk = RiskHigh
	case len(indicators) >= 1:
		risk = RiskMedium
	}

	return &TamperAssessment{
		RiskLevel:       risk,
		TamperingLikely: len(indicators) >= tamperLikelyIndicators,
		Indicators:      indicators,
		OutlierRatio:    outlierRatio,
	}
}
