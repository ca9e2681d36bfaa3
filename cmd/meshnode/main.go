// Command meshnode runs one mesh verification node: it serves comparison
// requests from peers, discovers other nodes through a rendezvous
// service and exposes the verification pipeline over HTTP.
//
// # Configuration
//
// Settings load from defaults, an optional YAML file named by
// ENFMESH_CONFIG, and ENFMESH_-prefixed environment variables:
//
//	listen_addr: ":8090"
//	metrics_addr: ":9090"
//	node_address: "http://node-a.local:8090"
//	rendezvous_url: "http://rendezvous.local:8080"
//	min_peers: 3
//
// # Usage
//
//	go run ./cmd/meshnode --config=node.yaml
//	ENFMESH_LISTEN_ADDR=:8091 go run ./cmd/meshnode
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/soundproof/enfmesh/aggregator"
	"github.com/soundproof/enfmesh/api/httpserver"
	cmdcommon "github.com/soundproof/enfmesh/cmd/common"
	"github.com/soundproof/enfmesh/common"
	"github.com/soundproof/enfmesh/config"
	"github.com/soundproof/enfmesh/coordinator"
	"github.com/soundproof/enfmesh/enf"
	"github.com/soundproof/enfmesh/mesh"
	"github.com/soundproof/enfmesh/metrics"
	"github.com/soundproof/enfmesh/protocol"
	"github.com/soundproof/enfmesh/services"
	"github.com/soundproof/enfmesh/store"
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
	m, reg := metrics.New(common.PackageName)

	signingKey, err := cmdcommon.LoadOrGenerateSigningKey(cfg.SigningKey)
	if err != nil {
		return err
	}
	publicKey, err := signingKey.PublicKey()
	if err != nil {
		return err
	}
	selfID := uuid.NewString()

	var st store.Store
	if cfg.PostgresHost != "" {
		st, err = store.NewPostgresStore(cfg.PostgresConfig())
		if err != nil {
			return err
		}
	} else {
		log.Info("no database configured, using in-memory store")
		st = store.NewMemoryStore()
	}
	defer st.Close()

	meshCfg := &protocol.MeshConfig{
		PeerStaleAfter:    cfg.PeerStaleAfter,
		DiscoveryInterval: cfg.DiscoveryInterval,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		ComparisonTimeout: cfg.ComparisonTimeout,
	}

	node, err := services.NewNode(services.NodeConfig{
		SelfID:     selfID,
		SigningKey: signingKey,
		Store:      st,
		Address:    cfg.NodeAddress,
		Log:        log,
		Metrics:    m,
	})
	if err != nil {
		return err
	}

	var discoverers []mesh.Discoverer
	if cfg.RendezvousURL != "" {
		discoverers = append(discoverers, &mesh.RendezvousDiscoverer{
			URL:    cfg.RendezvousURL,
			SelfID: selfID,
		})
	}

	transport, err := mesh.NewTransport(mesh.Config{
		Mesh:       meshCfg,
		SelfID:     selfID,
		SigningKey: signingKey,
		Sender:     &services.HTTPSender{},
		Log:        log,
		Metrics:    m,
	}, discoverers...)
	if err != nil {
		return err
	}

	verifier := &services.Verifier{
		Extractor: enf.NewExtractor(enf.DefaultExtractorConfig()),
		Coordinator: coordinator.New(coordinator.Config{
			Transport: transport,
			PublicKey: publicKey,
			Store:     st,
			Log:       log,
			Metrics:   m,
		}),
		Aggregator: aggregator.New(log, m),
		Options: aggregator.Options{
			OutlierThreshold: cfg.OutlierThreshold,
			MinPeers:         cfg.MinPeers,
			VerifySignatures: true,
		},
		Store: st,
		Log:   log,
	}

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               cfg.ListenAddr,
		MetricsAddr:              cfg.MetricsAddr,
		EnablePprof:              cfg.EnablePprof,
		Log:                      log,
		DrainDuration:            5 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
		ReadTimeout:              30 * time.Second,
		WriteTimeout:             60 * time.Second,
	}, reg, node, verifier)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport.StartDiscovery(ctx)
	defer transport.Close()

	if cfg.RendezvousURL != "" {
		go keepRegistered(ctx, log, cfg.RendezvousURL, node, meshCfg.WithDefaults().PeerStaleAfter)
	}

	srv.RunInBackground()
	log.Info("mesh node running", "id", selfID, "listenAddr", cfg.ListenAddr)

	<-ctx.Done()
	log.Info("shutting down")
	srv.Shutdown()
	return nil
}

// keepRegistered re-announces the node to the rendezvous service at half
// the staleness window so the registration never expires.
func keepRegistered(ctx context.Context, log *slog.Logger, url string, node *services.Node, staleAfter time.Duration) {
	ticker := time.NewTicker(staleAfter / 2)
	defer ticker.Stop()

	for {
		if err := registerOnce(url, node); err != nil {
			log.Warn("rendezvous registration failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func registerOnce(url string, node *services.Node) error {
	info := node.PeerInfo()
	signed, err := node.SignPeerInfo(&info)
	if err != nil {
		return err
	}
	return services.RegisterWith(nil, url, signed)
}
