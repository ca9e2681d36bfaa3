// Package protocol defines the wire-level types exchanged between mesh
// peers: the signed envelope wrapping every message, the comparison
// request/response payloads, peer reports, and the mesh configuration
// shared by all components.
//
// Envelope encoding is JSON and must stay bit-compatible across peers;
// signing always covers the canonical serialized form produced here.
package protocol
