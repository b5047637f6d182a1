// Package metrics exposes Prometheus instrumentation for audit runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "radaudit"

// Stage outcomes
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeCached   = "cached"
)

// Attempt results
const (
	AttemptOK          = "ok"
	AttemptGenError    = "generation_error"
	AttemptParseError  = "parse_error"
	AttemptSchemaError = "schema_error"
	AttemptDecodeError = "decode_error"
)

var (
	// StageRuns counts structured stages by final outcome.
	// Labels: task, outcome (ok, fallback, cached)
	StageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stage",
		Name:      "runs_total",
		Help:      "Structured stages run, by outcome",
	}, []string{"task", "outcome"})

	// GenerationAttempts counts individual generation attempts.
	// Labels: task, result
	GenerationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "generation",
		Name:      "attempts_total",
		Help:      "Generation attempts, by result",
	}, []string{"task", "result"})

	// GenerationLatency measures the duration of single generation calls.
	// Labels: provider
	GenerationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "generation",
		Name:      "latency_seconds",
		Help:      "Generation call latency in seconds",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"provider"})

	// SchemaRepairs counts stages that exhausted their attempts.
	// Labels: task
	SchemaRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stage",
		Name:      "schema_repairs_total",
		Help:      "Stages that fell back after exhausting retries",
	}, []string{"task"})

	// OrphanedReferences counts alignments whose claim id matched no claim.
	OrphanedReferences = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alignment",
		Name:      "orphaned_references_total",
		Help:      "Alignments referencing unknown claim ids",
	})

	// AuditScore tracks the distribution of overall scores.
	// Labels: severity
	AuditScore = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "score",
		Help:      "Distribution of overall audit scores",
		Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	}, []string{"severity"})

	// BatchCases counts batch cases by result.
	// Labels: result (completed, failed)
	BatchCases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "batch",
		Name:      "cases_total",
		Help:      "Batch cases processed, by result",
	}, []string{"result"})
)

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
