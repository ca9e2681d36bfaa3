// Command registry runs a standalone rendezvous registry service.
//
// The registry brokers relay-transport discovery: mesh nodes register
// their signed peer descriptors here and poll /peers for others. No
// message payloads pass through it.
//
// # Endpoints
//
//   - POST /register - self-signed peer registration
//   - DELETE /unregister/{id} - remove a registration
//   - GET /peers - live registrations
//   - GET /config - shared mesh parameters
//   - GET /livez, /readyz, /drain, /undrain - lifecycle
//
// # Usage
//
//	go run ./cmd/registry
//	ENFMESH_LISTEN_ADDR=:8080 go run ./cmd/registry
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundproof/enfmesh/api/httpserver"
	cmdcommon "github.com/soundproof/enfmesh/cmd/common"
	"github.com/soundproof/enfmesh/common"
	"github.com/soundproof/enfmesh/config"
	"github.com/soundproof/enfmesh/metrics"
	"github.com/soundproof/enfmesh/protocol"
	"github.com/soundproof/enfmesh/services"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("ENFMESH_CONFIG", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	log := cmdcommon.NewLogger(cfg.LogLevel, cfg.LogJSON)
	_, reg := metrics.New(common.PackageName)

	meshCfg := &protocol.MeshConfig{
		PeerStaleAfter:    cfg.PeerStaleAfter,
		DiscoveryInterval: cfg.DiscoveryInterval,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		ComparisonTimeout: cfg.ComparisonTimeout,
	}
	rendezvous := services.NewRendezvous(meshCfg, log)

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              15 * time.Second,
		WriteTimeout:             15 * time.Second,
	}, reg, rendezvous)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.RunInBackground()
	log.Info("rendezvous registry running", "listenAddr", cfg.ListenAddr)

	<-ctx.Done()
	log.Info("shutting down")
	srv.Shutdown()
	return nil
}
