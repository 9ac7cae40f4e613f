// Command evigraph-ingest loads raw agent output files into the graph and
// prints the conflict report and opportunity score for every pair they touch.
//
// Each input file holds one agent's raw output object. The agent class is
// taken from the -agent flag, or fetched live from the configured agent
// roster with -query.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/pharmasignal/evigraph/internal/agents"
	"github.com/pharmasignal/evigraph/internal/config"
	"github.com/pharmasignal/evigraph/internal/graph"
	"github.com/pharmasignal/evigraph/internal/graph/postgres"
	"github.com/pharmasignal/evigraph/internal/graph/sqlite"
	"github.com/pharmasignal/evigraph/internal/pipeline"
	"github.com/pharmasignal/evigraph/pkg/types"
)

func main() {
	agentID := flag.String("agent", "", "agent class of the input files (clinical|patent|market|literature)")
	query := flag.String("query", "", "fetch live output for this query from all configured agents instead of reading files")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open graph store: %v", err)
	}
	svc := pipeline.NewService(store)
	defer svc.Close()

	ctx := context.Background()
	var results []pipeline.IngestResult
	if *query != "" {
		results, err = ingestLive(ctx, svc, cfg, *query)
	} else {
		results, err = ingestFiles(ctx, svc, types.SourceType(*agentID), flag.Args())
	}
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}

	log.Printf("ingested %d evidence record(s)", len(results))
	report(ctx, svc, results)
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

func ingestFiles(ctx context.Context, svc *pipeline.Service, agentID types.SourceType, paths []string) ([]pipeline.IngestResult, error) {
	if !types.IsValidSourceType(agentID) {
		return nil, fmt.Errorf("-agent must be one of clinical, patent, market, literature")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files given")
	}

	var all []pipeline.IngestResult
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return all, fmt.Errorf("read %s: %w", path, err)
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return all, fmt.Errorf("parse %s: %w", path, err)
		}
		results, err := svc.IngestBatch(ctx, agentID, raw)
		if err != nil {
			// A rejected envelope must not abort the other files.
			log.Printf("WARNING: %s: %v", path, err)
			continue
		}
		all = append(all, results...)
	}
	return all, nil
}

func ingestLive(ctx context.Context, svc *pipeline.Service, cfg *config.Config, query string) ([]pipeline.IngestResult, error) {
	rosterCfg, err := agents.LoadConfig(cfg.Agents.ConfigPath)
	if err != nil {
		return nil, err
	}
	roster := agents.NewRoster(rosterCfg)

	var all []pipeline.IngestResult
	for _, ep := range rosterCfg.Endpoints {
		client, ok := roster.Client(ep.AgentID)
		if !ok {
			continue
		}
		raw, err := client.Fetch(ctx, query)
		if err != nil {
			log.Printf("WARNING: %s agent fetch failed: %v", ep.AgentID, err)
			continue
		}
		results, err := svc.IngestBatch(ctx, ep.AgentID, raw)
		if err != nil {
			log.Printf("WARNING: %s agent output rejected: %v", ep.AgentID, err)
			continue
		}
		all = append(all, results...)
	}
	return all, nil
}

func report(ctx context.Context, svc *pipeline.Service, results []pipeline.IngestResult) {
	pairs := make(map[[2]string]bool)
	for _, r := range results {
		pairs[[2]string{r.DrugID, r.DiseaseID}] = true
	}
	keys := make([][2]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	for _, pair := range keys {
		conflict, err := svc.ExplainConflict(ctx, pair[0], pair[1])
		if err != nil {
			log.Printf("WARNING: conflict explanation for %s/%s failed: %v", pair[0], pair[1], err)
			continue
		}
		score, err := svc.ComputeROS(ctx, pair[0], pair[1])
		if err != nil {
			log.Printf("WARNING: scoring for %s/%s failed: %v", pair[0], pair[1], err)
			continue
		}
		fmt.Printf("\n=== %s / %s ===\n", pair[0], pair[1])
		fmt.Printf("conflict: %v (severity %s)\n", conflict.HasConflict, conflict.Severity)
		fmt.Printf("%s\n", conflict.SummaryText)
		fmt.Printf("score: %.2f/10\n%s\n", score.Score, score.Explanation)
	}
}
