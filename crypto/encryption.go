package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// SealedMessage contains an AES-GCM sealed payload for one mesh connection.
// Format: nonce (12 bytes) || ciphertext+tag
type SealedMessage struct {
	Nonce      []byte // AES-GCM nonce
	Ciphertext []byte // Encrypted data with auth tag
}

// Seal encrypts plaintext under a per-connection shared key.
// The key must come from DeriveSharedSecret; raw curve output is rejected
// only by convention, not enforced here.
func Seal(key SharedKey, plaintext []byte) (*SealedMessage, error) {
	gcm, err := connectionCipher(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return &SealedMessage{
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Open decrypts a sealed message with the connection's shared key.
func Open(key SharedKey, msg *SealedMessage) ([]byte, error) {
	gcm, err := connectionCipher(key)
	if err != nil {
		return nil, err
	}

	if len(msg.Nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}

	plaintext, err := gcm.Open(nil, msg.Nonce, msg.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}

// Bytes serializes a sealed message.
func (m *SealedMessage) Bytes() []byte {
	result := make([]byte, 0, len(m.Nonce)+len(m.Ciphertext))
	result = append(result, m.Nonce...)
	result = append(result, m.Ciphertext...)
	return result
}

// ParseSealedMessage deserializes a sealed message.
func ParseSealedMessage(data []byte) (*SealedMessage, error) {
	const nonceLen = 12
	minLen := nonceLen + 16 // 16 is minimum ciphertext (just auth tag)

	if len(data) < minLen {
		return nil, errors.New("sealed message too short")
	}

	return &SealedMessage{
		Nonce:      data[:nonceLen],
		Ciphertext: data[nonceLen:],
	}, nil
}

func connectionCipher(key SharedKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveAESKey(key))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

func deriveAESKey(sharedSecret SharedKey) []byte {
	h := sha3.New256()
	h.Write([]byte("enfmesh-conn-v1"))
	h.Write(sharedSecret)
	return h.Sum(nil)
}
