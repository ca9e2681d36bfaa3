// Package common holds package-wide identity constants shared by the
// ENF-Mesh binaries and the metrics/http layers.
package common

// PackageName is the canonical name used for metrics namespaces and
// user agents.
const PackageName = "enfmesh"

// Version is overridden at build time via -ldflags.
var Version = "dev"
