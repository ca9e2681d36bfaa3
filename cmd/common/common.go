// Package common provides shared utilities for the service binaries:
// key loading and generation, logger construction, and mesh
// configuration fetch from a rendezvous service.
package common

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/soundproof/enfmesh/crypto"
	"github.com/soundproof/enfmesh/protocol"
)

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// NewLogger builds the process logger. Levels: debug, info, warn, error.
func NewLogger(level string, jsonOutput bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// FetchMeshConfig retrieves shared mesh parameters from a rendezvous
// service's /config endpoint.
func FetchMeshConfig(rendezvousURL string) (*protocol.MeshConfig, error) {
	resp, err := http.Get(rendezvousURL + "/config")
	if err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rendezvous returned status %d", resp.StatusCode)
	}

	config, err := protocol.DecodeMessage[protocol.MeshConfig](resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return config, nil
}
