// Command evigraph-server runs the evidence graph HTTP service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pharmasignal/evigraph/internal/config"
	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/internal/graph/postgres"
	"github.com/pharmasignal/evigraph/internal/graph/sqlite"
	"github.com/pharmasignal/evigraph/internal/pipeline"
	"github.com/pharmasignal/evigraph/internal/server"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open graph store: %v", err)
	}

	svc := pipeline.NewService(store)
	srv := server.New(cfg, svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Println("evigraph stopped")
}

func openStore(cfg *config.Config) (graph.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "memory":
		return graph.NewMemStore(), nil
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return sqlite.NewStore(filepath.Join(cfg.Storage.DataPath, "evigraph.db"))
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresURL)
	default:
		return nil, fmt.Errorf("unknown storage engine: %q", cfg.Storage.StorageEngine)
	}
}
