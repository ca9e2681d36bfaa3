// Package enf extracts and compares electrical-network-frequency
// (mains-hum) fingerprints from raw audio.
//
// A recording made near powered equipment picks up the 50/60 Hz grid hum.
// The hum's amplitude drifts over time in a way that is shared across
// devices on the same grid at the same moment, which makes its time
// series usable as a quasi-unique temporal and spatial signature. The
// extractor isolates the 45-65 Hz band, detects the dominant grid
// frequency, and tracks its magnitude frame by frame; the comparator
// aligns two such tracks and scores their similarity.
//
// Everything in this package is a pure transform: no networking, no
// persistence, no clock reads beyond stamping extraction time.
package enf
