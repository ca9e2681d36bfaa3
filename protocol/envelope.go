package protocol

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/soundproof/enfmesh/crypto"
)

// MessageType identifies the kind of payload carried by an envelope.
type MessageType string

const (
	FingerprintRequest  MessageType = "fingerprint_request"
	FingerprintResponse MessageType = "fingerprint_response"
	KeyExchange         MessageType = "key_exchange"
	Report              MessageType = "report"
)

// Valid returns true if the message type is recognized.
func (t MessageType) Valid() bool {
	switch t {
	case FingerprintRequest, FingerprintResponse, KeyExchange, Report:
		return true
	}
	return false
}

// Envelope is the signed wrapper around every mesh message. The wire
// encoding is JSON and must stay bit-compatible across peers.
type Envelope struct {
	Type      MessageType      `json:"type"`
	Payload   []byte           `json:"payload"`
	SenderID  string           `json:"sender_id"`
	Signature crypto.Signature `json:"signature"`
	Timestamp time.Time        `json:"timestamp"`
}

// signingBytes is the canonical byte string an envelope signature covers:
// type || payload || sender id || RFC3339 timestamp.
func (e *Envelope) signingBytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(string(e.Type))
	buf.Write(e.Payload)
	buf.WriteString(e.SenderID)
	buf.WriteString(e.Timestamp.UTC().Format(time.RFC3339))
	return buf.Bytes()
}

// NewEnvelope builds and signs an envelope for the given payload.
func NewEnvelope(privKey crypto.PrivateKey, msgType MessageType, senderID string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Type:      msgType,
		Payload:   raw,
		SenderID:  senderID,
		Timestamp: time.Now().UTC(),
	}

	sig, err := crypto.Sign(privKey, env.signingBytes())
	if err != nil {
		return nil, err
	}
	env.Signature = sig
	return env, nil
}

// Verify checks the envelope signature against the sender's public key.
func (e *Envelope) Verify(senderKey crypto.PublicKey) error {
	if !e.Type.Valid() {
		return ErrInvalidSignature
	}
	if !e.Signature.Verify(senderKey, e.signingBytes()) {
		return ErrInvalidSignature
	}
	return nil
}

// DecodePayload unmarshals the envelope payload into the given type.
// Callers must Verify first; the payload is untrusted until then.
func DecodePayload[T any](e *Envelope) (*T, error) {
	return UnmarshalMessage[T](e.Payload)
}
