package crypto

import (
	"bytes"
	"testing"
)

func FuzzSignVerify(f *testing.F) {
	// Add seed corpus
	f.Add([]byte{})                   // Empty message
	f.Add([]byte("hello"))            // Simple message
	f.Add([]byte("test message 123")) // Longer message
	f.Add(make([]byte, 1000))         // Large message

	f.Fuzz(func(t *testing.T, data []byte) {
		// Generate a key pair
		pubKey, privKey, err := GenerateKeyPair()
		if err != nil {
			t.Fatalf("failed to generate key pair: %v", err)
		}

		// Sign
		signature, err := Sign(privKey, data)
		if err != nil {
			t.Fatalf("signing failed: %v", err)
		}

		// Invariant 1: Signature has correct length (Ed25519 = 64 bytes)
		if len(signature) != 64 {
			t.Errorf("signature wrong length: got %d, want 64", len(signature))
		}

		// Invariant 2: Signature verifies with correct public key
		if !signature.Verify(pubKey, data) {
			t.Error("signature verification failed with correct key")
		}

		// Invariant 3: Signature fails with wrong public key
		wrongPubKey, _, _ := GenerateKeyPair()
		if signature.Verify(wrongPubKey, data) {
			t.Error("signature should not verify with wrong public key")
		}

		// Invariant 4: Modified data fails verification
		if len(data) > 0 {
			modifiedData := make([]byte, len(data))
			copy(modifiedData, data)
			modifiedData[0] ^= 0xFF
			if signature.Verify(pubKey, modifiedData) {
				t.Error("signature should not verify with modified data")
			}
		}

		// Invariant 5: Modified signature fails verification
		modifiedSig := make(Signature, len(signature))
		copy(modifiedSig, signature)
		modifiedSig[0] ^= 0xFF
		if modifiedSig.Verify(pubKey, data) {
			t.Error("modified signature should not verify")
		}

		// Invariant 6: Determinism - signing same data twice gives same signature
		signature2, _ := Sign(privKey, data)
		if !bytes.Equal(signature, signature2) {
			t.Error("signing is not deterministic")
		}
	})
}

func FuzzDigestVector(f *testing.F) {
	f.Add(uint16(1))
	f.Add(uint16(64))
	f.Add(uint16(1024))

	f.Fuzz(func(t *testing.T, n uint16) {
		vector := make([]float64, int(n)+1)
		for i := range vector {
			vector[i] = float64(i) / float64(len(vector))
		}

		d1 := DigestVector(vector)
		d2 := DigestVector(vector)

		// Invariant 1: Digest is 32 bytes (SHA3-256)
		if len(d1) != 32 {
			t.Errorf("digest wrong length: got %d, want 32", len(d1))
		}

		// Invariant 2: Digest is deterministic
		if !bytes.Equal(d1, d2) {
			t.Error("digest is not deterministic")
		}

		// Invariant 3: A single-sample change flips the digest
		modified := make([]float64, len(vector))
		copy(modified, vector)
		modified[0] += 0.5
		if bytes.Equal(d1, DigestVector(modified)) {
			t.Error("digest did not change with modified vector")
		}
	})
}
