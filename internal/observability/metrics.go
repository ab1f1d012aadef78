// Package observability — metrics.go
//
// Prometheus metrics for the causal BP/EM inference engine.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
//
// Metric naming convention: causalbp_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - Termination-reason labels use the string name (3 values max).
//   - Factor/variable indices are NOT used as labels (unbounded cardinality);
//     per-sweep figures are aggregated (max/last) before recording.

package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for the inference engine.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Belief propagation ───────────────────────────────────────────────────

	// BPSweepsTotal counts completed BP sweeps.
	BPSweepsTotal prometheus.Counter

	// BPMaxDiff is the most recent sweep's maximum belief change over
	// variables and factors.
	BPMaxDiff prometheus.Gauge

	// BPYetToConverge is the most recent sweep's fraction of variables and
	// factors still outside tolerance.
	BPYetToConverge prometheus.Gauge

	// BPRunsTotal counts runs reported through ObserveRun, by termination
	// reason (ALL_CONVERGED, BIG_FRAC_CONVERGED, DIVERGED).
	BPRunsTotal *prometheus.CounterVec

	// BPRunIterations records the number of sweeps each run took.
	BPRunIterations prometheus.Histogram

	// ─── Expectation-maximization ────────────────────────────────────────────

	// EMIterationsTotal counts completed EM rounds.
	EMIterationsTotal prometheus.Counter

	// EMLogLikelihood is the most recent round's log-likelihood-ratio value.
	EMLogLikelihood prometheus.Gauge

	// EMRegressionsTotal counts rounds where the log-likelihood regressed.
	EMRegressionsTotal prometheus.Counter

	// EStepSampleLatency records per-sample E-step (BP run) latency.
	EStepSampleLatency prometheus.Histogram

	// ─── Storage ──────────────────────────────────────────────────────────────

	// StorageWriteLatency records bbolt write transaction latency.
	StorageWriteLatency prometheus.Histogram

	// StorageCheckpointsTotal counts stored checkpoints.
	StorageCheckpointsTotal prometheus.Counter

	// ─── Process ──────────────────────────────────────────────────────────────

	// UptimeSeconds is the number of seconds since the process started.
	UptimeSeconds prometheus.Gauge

	// startTime records when the process started (for uptime calculation).
	startTime time.Time
}

// NewMetrics creates and registers all engine Prometheus metrics on a
// dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		BPSweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "causalbp",
			Subsystem: "bp",
			Name:      "sweeps_total",
			Help:      "Total belief propagation sweeps executed.",
		}),

		BPMaxDiff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "causalbp",
			Subsystem: "bp",
			Name:      "max_diff",
			Help:      "Most recent sweep's maximum belief L-infinity change over variables and factors.",
		}),

		BPYetToConverge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "causalbp",
			Subsystem: "bp",
			Name:      "yet_to_converge_fraction",
			Help:      "Most recent sweep's fraction of variables and factors still outside tolerance.",
		}),

		BPRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "causalbp",
			Subsystem: "bp",
			Name:      "runs_total",
			Help:      "Total BP runs, by termination reason.",
		}, []string{"reason"}),

		BPRunIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "causalbp",
			Subsystem: "bp",
			Name:      "run_iterations",
			Help:      "Number of sweeps a BP run took before terminating.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		EMIterationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "causalbp",
			Subsystem: "em",
			Name:      "iterations_total",
			Help:      "Total expectation-maximization rounds executed.",
		}),

		EMLogLikelihood: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "causalbp",
			Subsystem: "em",
			Name:      "log_likelihood",
			Help:      "Most recent EM round's log-likelihood-ratio value.",
		}),

		EMRegressionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "causalbp",
			Subsystem: "em",
			Name:      "regressions_total",
			Help:      "Total EM rounds where the log-likelihood regressed.",
		}),

		EStepSampleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "causalbp",
			Subsystem: "em",
			Name:      "estep_sample_latency_seconds",
			Help:      "Per-sample E-step (BP run to convergence) latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "causalbp",
			Subsystem: "storage",
			Name:      "write_latency_seconds",
			Help:      "bbolt write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		StorageCheckpointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "causalbp",
			Subsystem: "storage",
			Name:      "checkpoints_total",
			Help:      "Total checkpoints written.",
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "causalbp",
			Subsystem: "process",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the process started.",
		}),
	}

	reg.MustRegister(
		m.BPSweepsTotal,
		m.BPMaxDiff,
		m.BPYetToConverge,
		m.BPRunsTotal,
		m.BPRunIterations,
		m.EMIterationsTotal,
		m.EMLogLikelihood,
		m.EMRegressionsTotal,
		m.EStepSampleLatency,
		m.StorageWriteLatency,
		m.StorageCheckpointsTotal,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveSweep implements causalbp.Recorder: it records the per-sweep
// maximum belief change and yet-to-converge fraction, and increments the
// sweep counter.
func (m *Metrics) ObserveSweep(maxDiff, yetToConverge float64) {
	m.BPSweepsTotal.Inc()
	m.BPMaxDiff.Set(maxDiff)
	m.BPYetToConverge.Set(yetToConverge)
}

// ObserveRun records a completed BP run: its termination reason and the
// number of sweeps it took.
func (m *Metrics) ObserveRun(reason string, iterations int) {
	m.BPRunsTotal.WithLabelValues(reason).Inc()
	m.BPRunIterations.Observe(float64(iterations))
}

// ObserveEMIteration records a completed EM round's log-likelihood, and
// whether it was a regression.
func (m *Metrics) ObserveEMIteration(logLikelihood float64, regressed bool) {
	m.EMIterationsTotal.Inc()
	m.EMLogLikelihood.Set(logLikelihood)
	if regressed {
		m.EMRegressionsTotal.Inc()
	}
}

// ObserveCheckpoint records a successful checkpoint write.
func (m *Metrics) ObserveCheckpoint() {
	m.StorageCheckpointsTotal.Inc()
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given address.
// Blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// updateUptime periodically updates the UptimeSeconds gauge.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
