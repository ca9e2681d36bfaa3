package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/soundproof/enfmesh/crypto"
)

// ProximityLevel is a peer's coarse distance judgment attached to a report.
type ProximityLevel string

const (
	ProximityNear   ProximityLevel = "near"
	ProximityMedium ProximityLevel = "medium"
	ProximityFar    ProximityLevel = "far"
)

// PeerReport is a signed, per-peer judgment of similarity between the
// peer's own fingerprint and a requester's fingerprint. Reports are
// created by the responding peer, transmitted once, and immutable.
type PeerReport struct {
	ID              string           `json:"id"`
	MediaItemID     string           `json:"media_item_id"`
	PeerEphemeralID string           `json:"peer_ephemeral_id"`
	ConfidenceScore float64          `json:"confidence_score"`
	Signature       crypto.Signature `json:"signature"`
	EphemeralPubKey crypto.PublicKey `json:"ephemeral_pub_key"`
	Timestamp       time.Time        `json:"timestamp"`
	PeerAddress     string           `json:"peer_address"`
	ProximityLevel  ProximityLevel   `json:"proximity_level"`
}

// signingBytes is the canonical subset of report fields the signature
// covers. Address and proximity are advisory and deliberately excluded.
func (r *PeerReport) signingBytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(r.ID)
	buf.WriteString(r.MediaItemID)
	buf.WriteString(r.PeerEphemeralID)
	buf.WriteString(strconv.FormatFloat(r.ConfidenceScore, 'g', -1, 64))
	buf.WriteString(r.Timestamp.UTC().Format(time.RFC3339))
	return buf.Bytes()
}

// SignReport signs the report's canonical fields with the peer's
// ephemeral private key and attaches the matching public key.
func SignReport(report *PeerReport, privKey crypto.PrivateKey) error {
	if report.ConfidenceScore < 0 || report.ConfidenceScore > 1 {
		return fmt.Errorf("confidence score %f out of range [0,1]", report.ConfidenceScore)
	}

	pubKey, err := privKey.PublicKey()
	if err != nil {
		return err
	}

	sig, err := crypto.Sign(privKey, report.signingBytes())
	if err != nil {
		return err
	}

	report.Signature = sig
	report.EphemeralPubKey = pubKey
	return nil
}

// VerifyReport checks the report signature against its claimed ephemeral
// public key.
func VerifyReport(report *PeerReport) error {
	if len(report.EphemeralPubKey) == 0 {
		return ErrInvalidSignature
	}
	if !report.Signature.Verify(report.EphemeralPubKey, report.signingBytes()) {
		return ErrInvalidSignature
	}
	return nil
}
