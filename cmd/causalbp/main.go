// Command causalbp — inference engine entrypoint.
//
// Startup sequence:
//  1. Load and validate config from /etc/causalbp/config.yaml (or -config).
//  2. Initialise structured logger (zap).
//  3. Open BoltDB checkpoint/run-history storage.
//  4. Prune stale run-history entries.
//  5. Start Prometheus metrics server (127.0.0.1:9091 by default).
//  6. Load the causal factor graph from -graph.
//  7. Dispatch to the selected mode: infer, learn, or query.
//  8. Close storage, flush logger, exit.
//
// Modes:
//
//	-mode infer   Run BP once on the loaded graph; print beliefs.
//	-mode learn   Run EM against an evidence table (-evidence) and a
//	              maximization-step file (-msteps); checkpoint the result.
//	-mode query   Hand stdin/stdout to the line-oriented query dispatcher
//	              (internal/queryio) over the loaded graph.
//
// On config validation failure or graph load failure: exit 1 immediately.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/causalbp/causalbp/internal/beliefstats"
	"github.com/causalbp/causalbp/internal/causalbp"
	"github.com/causalbp/causalbp/internal/causalem"
	"github.com/causalbp/causalbp/internal/causalgraph"
	"github.com/causalbp/causalbp/internal/config"
	"github.com/causalbp/causalbp/internal/evidence"
	"github.com/causalbp/causalbp/internal/observability"
	"github.com/causalbp/causalbp/internal/queryio"
	"github.com/causalbp/causalbp/internal/storage"
)

func main() {
	// ── Flags ────────────────────────────────────────────────────────────────
	configPath := flag.String("config", "/etc/causalbp/config.yaml", "Path to config.yaml")
	graphPath := flag.String("graph", "", "Path to the causal factor graph text file (required)")
	mode := flag.String("mode", "infer", "Mode: infer, learn, query")
	evidencePath := flag.String("evidence", "", "Path to the evidence table (required for -mode learn)")
	mstepsPath := flag.String("msteps", "", "Path to the maximization-step file (required for -mode learn)")
	checkpointName := flag.String("checkpoint", "", "Name under which to store a post-run checkpoint (empty disables)")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("causalbp %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ──────────────────────────────────────────────────
	var cfg config.Config
	if loaded, err := config.Load(*configPath); err != nil {
		if !os.IsNotExist(unwrapPathError(err)) {
			fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Defaults()
	} else {
		cfg = *loaded
	}

	// ── Step 2: Initialise logger ────────────────────────────────────────────
	log, err := observability.BuildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("causalbp starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("mode", *mode),
		zap.String("config", *configPath),
	)

	if *graphPath == "" {
		fmt.Fprintln(os.Stderr, "FATAL: -graph is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: Open BoltDB ───────────────────────────────────────────────────
	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.RetentionDays, log)
	if err != nil {
		log.Fatal("BoltDB open failed", zap.Error(err), zap.String("path", cfg.Storage.DBPath))
	}
	defer db.Close() //nolint:errcheck
	log.Info("BoltDB opened", zap.String("path", cfg.Storage.DBPath))

	// ── Step 4: Prune stale run-history entries ──────────────────────────────
	if pruned, err := db.PruneOldRuns(); err != nil {
		log.Warn("run-history pruning failed", zap.Error(err))
	} else {
		log.Info("run-history pruned", zap.Int("deleted", pruned))
	}

	// ── Step 5: Prometheus metrics ────────────────────────────────────────────
	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 6: Load the causal factor graph ─────────────────────────────────
	graph, err := causalgraph.Read(*graphPath, log)
	if err != nil {
		log.Fatal("graph load failed", zap.Error(err), zap.String("path", *graphPath))
	}
	log.Info("graph loaded",
		zap.String("path", *graphPath),
		zap.Int("nvars", graph.NrVars()),
		zap.Int("nfactors", graph.NrFactors()))

	bpOpts := cfg.Engine.ToEngineOptions()

	switch *mode {
	case "infer":
		runInfer(graph, bpOpts, metrics, db, *checkpointName, log)
	case "learn":
		runLearn(graph, cfg, evidencePath, mstepsPath, metrics, db, *checkpointName, log)
	case "query":
		runQuery(graph, bpOpts, metrics, log)
	default:
		fmt.Fprintf(os.Stderr, "FATAL: unknown mode %q (want infer, learn, query)\n", *mode)
		os.Exit(1)
	}

	log.Info("causalbp shutdown complete")
}

func runInfer(graph *causalgraph.Graph, bpOpts causalbp.Options, metrics *observability.Metrics, db *storage.DB, checkpointName string, log *zap.Logger) {
	engine := causalbp.New(graph, bpOpts, log)
	engine.SetRecorder(metrics)
	engine.Init()

	maxDiff, err := engine.Run()
	if err != nil {
		log.Fatal("BP run failed", zap.Error(err))
	}
	reason := causalbp.AllConverged
	if maxDiff > bpOpts.Tol {
		reason = causalbp.Diverged
	}
	metrics.ObserveRun(reason.String(), engine.Iterations())
	log.Info("BP run complete",
		zap.Int("iterations", engine.Iterations()),
		zap.Float64("maxdiff", maxDiff))

	p1s := make([]float64, 0, graph.NrVars())
	for i := 0; i < graph.NrVars(); i++ {
		p0, p1, err := engine.Belief(i)
		if err != nil {
			log.Error("belief query failed", zap.Int("var", i), zap.Error(err))
			continue
		}
		fmt.Printf("%d\t%.17g\t%.17g\n", i, p0, p1)
		p1s = append(p1s, p1)
	}
	log.Info("belief entropy summary",
		zap.Float64("mean_entropy_bits", beliefstats.MeanEntropy(p1s)),
		zap.Float64("low_information_fraction", beliefstats.LowInformationFraction(p1s, 0.9)))

	if checkpointName != "" {
		if err := db.PutCheckpoint(checkpointName, graph, engine.Iterations()); err != nil {
			log.Error("checkpoint write failed", zap.Error(err))
		} else {
			metrics.ObserveCheckpoint()
			log.Info("checkpoint written", zap.String("name", checkpointName))
		}
	}
}

func runLearn(graph *causalgraph.Graph, cfg config.Config, evidencePath, mstepsPath *string, metrics *observability.Metrics, db *storage.DB, checkpointName string, log *zap.Logger) {
	if *evidencePath == "" || *mstepsPath == "" {
		fmt.Fprintln(os.Stderr, "FATAL: -mode learn requires -evidence and -msteps")
		os.Exit(1)
	}

	ev, err := evidence.Read(*evidencePath)
	if err != nil {
		log.Fatal("evidence load failed", zap.Error(err), zap.String("path", *evidencePath))
	}

	mstepFile, err := os.Open(*mstepsPath)
	if err != nil {
		log.Fatal("maximization-step file open failed", zap.Error(err))
	}
	defer mstepFile.Close()

	msteps, err := causalem.ReadMaxSteps(mstepFile)
	if err != nil {
		log.Fatal("maximization-step parse failed", zap.Error(err))
	}

	emOpts := cfg.EM.ToEMOptions(cfg.Engine.ToEngineOptions())
	em := causalem.New(graph, ev, msteps, emOpts, log)

	runErr := em.Run()
	metrics.ObserveEMIteration(em.LogZ(), runErr != nil)
	if runErr != nil {
		log.Error("EM run ended early", zap.Error(runErr), zap.Int("iterations", em.Iterations()))
	} else {
		log.Info("EM run converged",
			zap.Int("iterations", em.Iterations()),
			zap.Float64("logz", em.LogZ()))
	}

	if checkpointName != "" {
		if err := db.PutCheckpoint(checkpointName, graph, em.Iterations()); err != nil {
			log.Error("checkpoint write failed", zap.Error(err))
		} else {
			metrics.ObserveCheckpoint()
			log.Info("checkpoint written", zap.String("name", checkpointName))
		}
	}

	if err := graph.WriteTo(os.Stdout); err != nil {
		log.Error("graph write failed", zap.Error(err))
	}
}

func runQuery(graph *causalgraph.Graph, bpOpts causalbp.Options, metrics *observability.Metrics, log *zap.Logger) {
	engine := causalbp.New(graph, bpOpts, log)
	engine.SetRecorder(metrics)
	engine.Init()
	if _, err := engine.Run(); err != nil {
		log.Fatal("initial BP run failed", zap.Error(err))
	}

	d := queryio.New(engine, log)
	if err := d.Run(os.Stdin, os.Stdout); err != nil {
		log.Error("query session ended with error", zap.Error(err))
		os.Exit(1)
	}
}

// unwrapPathError extracts the underlying error config.Load wrapped, so a
// missing config file (rather than a malformed one) can fall back to
// defaults instead of aborting.
func unwrapPathError(err error) error {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		next := u.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}
