package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soundproof/enfmesh/aggregator"
	"github.com/soundproof/enfmesh/coordinator"
	"github.com/soundproof/enfmesh/enf"
	"github.com/soundproof/enfmesh/store"
)

// VerificationResult is the end-to-end outcome for one capture: the
// extracted fingerprint, the peer consensus and the tamper verdict.
type VerificationResult struct {
	MediaItemID string                            `json:"media_item_id"`
	Fingerprint *enf.Fingerprint                  `json:"fingerprint"`
	Aggregation *aggregator.ConfidenceAggregation `json:"aggregation"`
	Tamper      *aggregator.TamperAssessment      `json:"tamper"`
}

// Verifier runs the full verification pipeline: extract → fan out →
// aggregate → analyze.
type Verifier struct {
	Extractor   *enf.Extractor
	Coordinator *coordinator.Coordinator
	Aggregator  *aggregator.Aggregator
	Options     aggregator.Options
	Store       store.Store
	Log         *slog.Logger
}

// Verify extracts a fingerprint from the samples, solicits peer reports
// and aggregates them into a consensus verdict. Extraction failures and
// insufficient reports surface as errors; individual peer failures do
// not.
func (v *Verifier) Verify(ctx context.Context, mediaItemID string, samples []float64, sampleRate int) (*VerificationResult, error) {
	fp, err := v.Extractor.Extract(samples, sampleRate)
	if err != nil {
		return nil, err
	}

	if v.Store != nil {
		if err := v.Store.SaveFingerprint(ctx, mediaItemID, fp); err != nil {
			return nil, err
		}
	}

	reports := v.Coordinator.RequestComparisons(ctx, mediaItemID, fp)

	agg, err := v.Aggregator.Aggregate(reports, v.Options)
	if err != nil {
		return nil, err
	}

	return &VerificationResult{
		MediaItemID: mediaItemID,
		Fingerprint: fp,
		Aggregation: agg,
		Tamper:      aggregator.AnalyzeTamperRisk(agg),
	}, nil
}

// verifyRequest is the HTTP surface of Verify, carrying raw PCM samples.
type verifyRequest struct {
	MediaItemID string    `json:"media_item_id"`
	Samples     []float64 `json:"samples"`
	SampleRate  int       `json:"sample_rate"`
}

// RegisterRoutes exposes the verification pipeline over HTTP.
func (v *Verifier) RegisterRoutes(r chi.Router) {
	r.Post("/verify", v.handleVerify)
}

func (v *Verifier) handleVerify(w http.ResponseWriter, req *http.Request) {
	var body verifyRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.MediaItemID == "" {
		http.Error(w, "media_item_id is required", http.StatusBadRequest)
		return
	}

	result, err := v.Verify(req.Context(), body.MediaItemID, body.Samples, body.SampleRate)
	if err != nil {
		if v.Log != nil {
			v.Log.Warn("verification failed", "mediaItem", body.MediaItemID, "err", err)
		}
		status := http.StatusInternalServerError

		var tooShort *enf.AudioTooShortError
		var insufficient *aggregator.InsufficientReportsError
		switch {
		case errors.As(err, &tooShort):
			status = http.StatusUnprocessableEntity
		case errors.As(err, &insufficient):
			status = http.StatusConflict
		}

		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
