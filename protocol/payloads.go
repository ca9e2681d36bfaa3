package protocol

// ComparisonRequest asks a peer to compare its local fingerprint for the
// media item against the requester's fingerprint hash.
type ComparisonRequest struct {
	// MediaItemID correlates the request to one captured recording.
	MediaItemID string `json:"media_item_id"`

	// FingerprintHash is the requester's fingerprint content digest,
	// hex encoded. Used by the peer for dedup and audit, not comparison.
	FingerprintHash string `json:"fingerprint_hash"`

	// EphemeralPublicKey is the requester's session signing key, hex
	// encoded. Responses are addressed to this identity.
	EphemeralPublicKey string `json:"ephemeral_public_key"`

	// Vector carries the requester's fingerprint amplitudes so the peer
	// can run the comparison locally against its own extraction.
	Vector []float64 `json:"vector"`

	// MainsFrequency is the detected grid frequency (50 or 60).
	MainsFrequency float64 `json:"mains_frequency"`

	// ExtractionQuality is the requester's extraction quality in [0,1].
	ExtractionQuality float64 `json:"extraction_quality"`
}

// ComparisonResponse carries a peer's judgment back to the requester.
type ComparisonResponse struct {
	MediaItemID     string      `json:"media_item_id"`
	ConfidenceScore float64     `json:"confidence_score"`
	SignedReport    *PeerReport `json:"signed_report"`
}

// KeyExchangePayload carries the material for deriving a per-connection
// symmetric key.
type KeyExchangePayload struct {
	// ExchangeKey is the sender's X25519 public key, hex encoded.
	ExchangeKey string `json:"exchange_key"`

	// SigningKey is the sender's ephemeral Ed25519 public key, hex encoded.
	SigningKey string `json:"signing_key"`
}
