// Command graphd runs the knowledge graph daemon: it loads a JSON graph
// export, applies extraction results arriving on NATS, mirrors every write
// to Neo4j when configured, and serves metrics and health endpoints.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/HoistlineAI/hoistline-mvp/engine/domain"
	"github.com/HoistlineAI/hoistline-mvp/engine/explain"
	"github.com/HoistlineAI/hoistline-mvp/engine/knowledge"
	"github.com/HoistlineAI/hoistline-mvp/engine/mirror"
	"github.com/HoistlineAI/hoistline-mvp/pkg/fn"
	"github.com/HoistlineAI/hoistline-mvp/pkg/metrics"
	"github.com/HoistlineAI/hoistline-mvp/pkg/mid"
	"github.com/HoistlineAI/hoistline-mvp/pkg/natsutil"
	"github.com/HoistlineAI/hoistline-mvp/pkg/resilience"
)

// ExtractionSubject carries domain.ExtractionResult messages from the
// extraction workers.
const ExtractionSubject = "engine.extraction"

var met = metrics.New()

var (
	mExtractionsTotal = met.Counter("hoistline_graphd_extractions_total", "Extraction results applied")
	mExtractionErrors = met.Counter("hoistline_graphd_extraction_errors_total", "Extraction results rejected")
	mGraphNodes       = met.Gauge("hoistline_graphd_nodes", "Nodes in the in-memory graph")
	mGraphEdges       = met.Gauge("hoistline_graphd_edges", "Edges in the in-memory graph")
	mBuildDur         = met.Histogram("hoistline_graphd_build_duration_seconds", "Per-extraction graph build time", nil)
)

func main() {
	var (
		graphDir    = flag.String("graph", "", "directory with nodes.json/edges.json to preload (optional)")
		natsURL     = flag.String("nats", nats.DefaultURL, "NATS server URL (empty disables the subscription)")
		neo4jURL    = flag.String("neo4j", "", "Neo4j bolt URL (empty disables the mirror)")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "", "Neo4j password")
		mirrorRate  = flag.Float64("mirror-rate", 200, "max mirrored writes per second")
		claudeModel = flag.String("model", explain.DefaultModel, "Anthropic model for explanations")
		strict      = flag.Bool("strict", false, "reject edges whose endpoints are not in the graph")
		port        = flag.Int("port", 9092, "HTTP port for /metrics and /healthz")
	)
	flag.Parse()

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Optional Neo4j mirror. A mirror that cannot connect is skipped, not
	// fatal: the in-memory graph is the store of record.
	var gm knowledge.Mirror
	if *neo4jURL != "" {
		m, err := mirror.Connect(ctx, *neo4jURL, *neo4jUser, *neo4jPass, mirror.Options{
			Breaker:         resilience.DefaultBreakerOpts,
			WritesPerSecond: *mirrorRate,
		}, log)
		if err != nil {
			log.Warn("neo4j mirror unavailable, continuing without it", "error", err)
		} else {
			gm = m
			defer m.Close(context.Background())
		}
	}

	store := knowledge.NewStore(gm, knowledge.Options{StrictEndpoints: *strict}, log)

	if *graphDir != "" {
		nodes, edges, err := store.LoadFromJSON(ctx, *graphDir)
		if err != nil {
			log.Error("graph preload failed", "dir", *graphDir, "error", err)
			os.Exit(1)
		}
		log.Info("graph preloaded", "nodes", nodes, "edges", edges)
	}

	var summarizer knowledge.Summarizer
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		summarizer = explain.NewClaude(key, *claudeModel, log)
	}
	reasoner := knowledge.NewReasoner(store, summarizer, log)

	// The store has no internal locking: graphd owns the single-writer
	// discipline. The NATS handler is the only writer; HTTP reads share mu.
	var mu sync.RWMutex

	updateGauges := func() {
		stats := store.Stats()
		mGraphNodes.Set(int64(stats.TotalNodes))
		mGraphEdges.Set(int64(stats.TotalEdges))
	}
	mu.Lock()
	updateGauges()
	mu.Unlock()

	build := buildStage(store, &mu)

	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL, nats.Name("graphd"))
		if err != nil {
			log.Error("nats connect failed", "url", *natsURL, "error", err)
			os.Exit(1)
		}
		defer nc.Close()

		sub, err := natsutil.Subscribe(nc, ExtractionSubject, func(ctx context.Context, res domain.ExtractionResult) {
			runID := uuid.NewString()[:8]
			start := time.Now()
			if _, err := build(ctx, res).Unwrap(); err != nil {
				mExtractionErrors.Inc()
				log.Warn("extraction rejected", "run", runID, "document", res.DocumentID, "error", err)
				return
			}
			mExtractionsTotal.Inc()
			mBuildDur.Since(start)
			mu.Lock()
			updateGauges()
			mu.Unlock()
			log.Info("extraction applied", "run", runID, "document", res.DocumentID)
		})
		if err != nil {
			log.Error("nats subscribe failed", "subject", ExtractionSubject, "error", err)
			os.Exit(1)
		}
		defer sub.Unsubscribe()
		log.Info("subscribed", "subject", ExtractionSubject)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		mu.RLock()
		stats := store.Stats()
		mu.RUnlock()
		writeJSON(w, stats)
	})
	mux.HandleFunc("/causes", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}
		// Only the graph walk runs under the read lock; the summarizer can
		// take tens of seconds and must not stall the extraction writer.
		mu.RLock()
		chain, ok := reasoner.CollectCauses(id, queryDepth(r))
		mu.RUnlock()
		if ok {
			chain.Explanation = reasoner.ExplainCauses(r.Context(), chain)
		}
		writeJSON(w, chain)
	})
	mux.HandleFunc("/effects", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "missing id", http.StatusBadRequest)
			return
		}
		mu.RLock()
		effects := reasoner.FindEffects(id, queryDepth(r))
		mu.RUnlock()
		writeJSON(w, map[string]any{"effects": effects})
	})
	mux.HandleFunc("/explain", func(w http.ResponseWriter, r *http.Request) {
		start, end := r.URL.Query().Get("start"), r.URL.Query().Get("end")
		if start == "" || end == "" {
			http.Error(w, "missing start or end", http.StatusBadRequest)
			return
		}
		mu.RLock()
		path, text := reasoner.ConnectionPath(start, end)
		mu.RUnlock()
		if path != nil {
			text = reasoner.ExplainPath(r.Context(), *path)
		}
		writeJSON(w, map[string]string{"explanation": text})
	})
	mux.HandleFunc("/fault", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		mu.RLock()
		defer mu.RUnlock()
		node, ok := store.FindFaultByCode(code)
		if !ok {
			http.Error(w, "fault not found", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{
			"fault":      node,
			"resolution": store.FaultResolution(node.ID),
			"tests":      store.FaultTests(node.ID),
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: mid.Chain(mux, mid.Recover(log), mid.Logger(log), mid.OTel("graphd")),
	}
	go func() {
		log.Info("http listening", "port", *port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// queryDepth reads the depth query param, defaulting to 3.
func queryDepth(r *http.Request) int {
	if v := r.URL.Query().Get("depth"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			return d
		}
	}
	return 3
}

// buildStage validates and applies one extraction result under the writer
// lock.
func buildStage(store *knowledge.Store, mu *sync.RWMutex) fn.Stage[domain.ExtractionResult, string] {
	validate := func(_ context.Context, res domain.ExtractionResult) fn.Result[domain.ExtractionResult] {
		if err := domain.ValidateExtraction(res); err != nil {
			return fn.Err[domain.ExtractionResult](err)
		}
		return fn.Ok(res)
	}
	apply := func(ctx context.Context, res domain.ExtractionResult) fn.Result[string] {
		mu.Lock()
		defer mu.Unlock()
		if err := store.BuildFromExtraction(ctx, res); err != nil {
			return fn.Err[string](err)
		}
		return fn.Ok(res.DocumentID)
	}
	return fn.Then(
		fn.TracedStage("graphd.validate", fn.Stage[domain.ExtractionResult, domain.ExtractionResult](validate)),
		fn.TracedStage("graphd.apply", fn.Stage[domain.ExtractionResult, string](apply)),
	)
}
