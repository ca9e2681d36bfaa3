package mesh

import (
	"fmt"
	"time"
)

// ConnectionError indicates a peer connection could not be established.
// Recoverable: the peer is simply excluded from the current run.
type ConnectionError struct {
	PeerID string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to peer %s: %v", e.PeerID, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PeerTimeoutError indicates a peer failed to answer within its
// independent deadline. Recoverable: logged and excluded.
type PeerTimeoutError struct {
	PeerID  string
	Timeout time.Duration
}

func (e *PeerTimeoutError) Error() string {
	return fmt.Sprintf("peer %s did not respond within %s", e.PeerID, e.Timeout)
}
