package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/soundproof/enfmesh/protocol"
)

// MeshMessagePath is the route all node-to-node envelopes go through.
const MeshMessagePath = "/mesh/message"

// HTTPSender delivers envelopes to peer nodes over HTTP POST. It
// implements mesh.EnvelopeSender; peer addresses are base URLs.
type HTTPSender struct {
	// Client is the HTTP client used for delivery. Defaults to a client
	// with a 30 second timeout; per-request deadlines come from ctx.
	Client *http.Client
}

// Send posts the envelope to the peer and decodes the response envelope.
func (s *HTTPSender) Send(ctx context.Context, address string, env *protocol.Envelope) (*protocol.Envelope, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	body, err := protocol.SerializeMessage(env)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address+MeshMessagePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer returned status %d", resp.StatusCode)
	}

	return protocol.DecodeMessage[protocol.Envelope](resp.Body)
}
