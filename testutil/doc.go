// Package testutil provides generators and an in-memory mesh simulation
// shared by the package tests: key pairs, synthetic fingerprints, signed
// peer reports with functional options, and SimPeer/SimNetwork for
// exercising the transport and coordinator without sockets.
package testutil
