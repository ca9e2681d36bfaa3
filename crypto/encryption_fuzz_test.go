package crypto

import (
	"bytes"
	"testing"
)

func FuzzSealOpen(f *testing.F) {
	// Add seed corpus
	f.Add([]byte{})                              // Empty plaintext
	f.Add([]byte("hello"))                       // Simple message
	f.Add([]byte("hello world, this is a test")) // Longer message
	f.Add(make([]byte, 1000))                    // Large message

	f.Fuzz(func(t *testing.T, plaintext []byte) {
		// Derive a connection key for each test
		pubA, privA, err := GenerateKemKeyPair()
		if err != nil {
			t.Fatalf("failed to generate kem key: %v", err)
		}
		pubB, privB, err := GenerateKemKeyPair()
		if err != nil {
			t.Fatalf("failed to generate kem key: %v", err)
		}

		keyAB, err := DeriveSharedSecret(privA, pubB, []byte("fuzz"))
		if err != nil {
			t.Fatalf("derive shared secret: %v", err)
		}
		keyBA, err := DeriveSharedSecret(privB, pubA, []byte("fuzz"))
		if err != nil {
			t.Fatalf("derive shared secret: %v", err)
		}

		// Invariant 1: Both sides derive the same connection key
		if !bytes.Equal(keyAB, keyBA) {
			t.Fatal("shared secret mismatch between peers")
		}

		// Seal
		sealed, err := Seal(keyAB, plaintext)
		if err != nil {
			t.Fatalf("seal failed: %v", err)
		}

		// Invariant 2: Sealed message has expected structure
		if len(sealed.Nonce) != 12 {
			t.Errorf("nonce wrong size: got %d, want 12", len(sealed.Nonce))
		}
		if len(sealed.Ciphertext) < len(plaintext)+16 {
			t.Errorf("ciphertext too short: got %d, want >= %d", len(sealed.Ciphertext), len(plaintext)+16)
		}

		// Invariant 3: Round-trip preserves plaintext
		opened, err := Open(keyBA, sealed)
		if err != nil {
			t.Fatalf("open failed: %v", err)
		}
		if !bytes.Equal(plaintext, opened) {
			t.Errorf("round trip failed: got %v, want %v", opened, plaintext)
		}

		// Invariant 4: Wrong key fails to open
		wrongKey := NewSharedKey(make([]byte, 32))
		if _, err := Open(wrongKey, sealed); err == nil {
			t.Error("open with wrong key should fail")
		}

		// Invariant 5: Serialization round-trips
		parsed, err := ParseSealedMessage(sealed.Bytes())
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		reopened, err := Open(keyAB, parsed)
		if err != nil {
			t.Fatalf("open after parse failed: %v", err)
		}
		if !bytes.Equal(plaintext, reopened) {
			t.Error("parse round trip lost data")
		}
	})
}

func FuzzParseSealedMessage(f *testing.F) {
	// Add seed corpus with various lengths
	f.Add(make([]byte, 0))   // Empty
	f.Add(make([]byte, 12))  // Nonce only
	f.Add(make([]byte, 27))  // Just under minimum
	f.Add(make([]byte, 28))  // Exactly minimum
	f.Add(make([]byte, 100)) // Valid length

	f.Fuzz(func(t *testing.T, data []byte) {
		msg, err := ParseSealedMessage(data)
		if len(data) < 28 {
			if err == nil {
				t.Error("parse should fail for short input")
			}
			return
		}
		if err != nil {
			t.Fatalf("parse failed for valid length: %v", err)
		}
		if !bytes.Equal(msg.Bytes(), data) {
			t.Error("serialization round trip mismatch")
		}
	})
}
