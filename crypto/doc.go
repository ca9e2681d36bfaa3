// Package crypto provides the capability-shaped cryptographic surface
// the ENF-Mesh core depends on: Ed25519 signing and verification,
// X25519+HKDF shared secret derivation for per-connection keys,
// AES-GCM sealing for connection payloads, and SHA3-256 content digests.
//
// The rest of the repository treats these primitives as opaque and
// correct. Nothing outside this package assumes anything about the
// underlying constructions beyond the contracts documented here, so the
// implementation can be swapped at this boundary.
package crypto
