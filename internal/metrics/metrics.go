// Package metrics exposes Prometheus instrumentation for the triage
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the counters updated by the coordinator.
type Metrics struct {
	Processed        *prometheus.CounterVec
	AutoResponses    prometheus.Counter
	ApprovalsQueued  prometheus.Counter
	ApprovalsResolv  prometheus.Counter
	SendFailures     prometheus.Counter
	ClassifierErrors prometheus.Counter
	PendingApprovals prometheus.Gauge
}

// New registers the triage metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_messages_processed_total",
			Help: "Inbound messages processed, by classified intent.",
		}, []string{"intent"}),
		AutoResponses: f.NewCounter(prometheus.CounterOpts{
			Name: "triage_auto_responses_total",
			Help: "Responses sent without human review.",
		}),
		ApprovalsQueued: f.NewCounter(prometheus.CounterOpts{
			Name: "triage_approvals_queued_total",
			Help: "Drafts queued for human approval.",
		}),
		ApprovalsResolv: f.NewCounter(prometheus.CounterOpts{
			Name: "triage_approvals_resolved_total",
			Help: "Approval items resolved and sent.",
		}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "triage_send_failures_total",
			Help: "Outbound deliveries rejected by the transport.",
		}),
		ClassifierErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "triage_classifier_errors_total",
			Help: "Classifier calls that degraded to the fallback intent.",
		}),
		PendingApprovals: f.NewGauge(prometheus.GaugeOpts{
			Name: "triage_pending_approvals",
			Help: "Approval items currently awaiting review.",
		}),
	}
}

// NewDefault registers against the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// Serve starts an HTTP listener exposing /metrics. Best effort: a listen
// failure is logged, not fatal.
func Serve(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("Metrics listener failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("Serving Prometheus metrics", zap.String("addr", addr))
}
