// Command graphload loads a JSON graph export into memory, prints its
// stats, and optionally backfills the graph into Neo4j or re-exports a
// normalized copy of it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/HoistlineAI/hoistline-mvp/engine/knowledge"
	"github.com/HoistlineAI/hoistline-mvp/engine/mirror"
	"github.com/HoistlineAI/hoistline-mvp/pkg/resilience"
)

func main() {
	var (
		dir        = flag.String("dir", "", "directory with nodes.json/edges.json (required)")
		out        = flag.String("out", "", "re-export the loaded graph to this directory")
		neo4jURL   = flag.String("neo4j", "", "Neo4j bolt URL for backfill (empty disables)")
		neo4jUser  = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass  = flag.String("neo4j-pass", "", "Neo4j password")
		mirrorRate = flag.Float64("mirror-rate", 500, "max mirrored writes per second")
		workers    = flag.Int("workers", 8, "concurrent backfill writers")
		strict     = flag.Bool("strict", false, "reject edges whose endpoints are not in the graph")
	)
	flag.Parse()

	log := slog.Default()
	if *dir == "" {
		log.Error("missing -dir")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Load without a mirror attached: the bulk replay runs afterwards in
	// parallel batches, which is much faster than mirroring write by write.
	store := knowledge.NewStore(nil, knowledge.Options{StrictEndpoints: *strict}, log)
	nodes, edges, err := store.LoadFromJSON(ctx, *dir)
	if err != nil {
		log.Error("load failed", "dir", *dir, "error", err)
		os.Exit(1)
	}
	log.Info("graph loaded", "nodes", nodes, "edges", edges)

	if *neo4jURL != "" {
		m, err := mirror.Connect(ctx, *neo4jURL, *neo4jUser, *neo4jPass, mirror.Options{
			Breaker:         resilience.DefaultBreakerOpts,
			WritesPerSecond: *mirrorRate,
		}, log)
		if err != nil {
			log.Error("neo4j connect failed", "error", err)
			os.Exit(1)
		}
		defer m.Close(context.Background())

		mn, me, err := store.MirrorBackfill(ctx, m, *workers)
		if err != nil {
			log.Error("backfill failed", "error", err)
			os.Exit(1)
		}
		log.Info("backfill complete", "nodes", mn, "edges", me)
	}

	if *out != "" {
		if err := store.ExportToJSON(*out); err != nil {
			log.Error("export failed", "dir", *out, "error", err)
			os.Exit(1)
		}
		log.Info("graph exported", "dir", *out)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(store.Stats())
}
