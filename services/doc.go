// Package services contains the HTTP-facing mesh services: the node
// service that answers key exchanges and comparison requests, the
// envelope sender that carries mesh messages between nodes, and the
// rendezvous registry backing relay-transport discovery.
package services
