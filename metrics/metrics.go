// Package metrics exposes Prometheus counters for recovery, custody and
// rate-limit activity, served on a dedicated listener so scrape traffic never
// mixes with API traffic.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyquorum/wallet-recovery-backend/common"
)

// Outcome label values shared across counters.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeNotFound    = "not_found"
	OutcomeDenied      = "denied"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

var (
	serviceInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "service_info",
		Help: "Static service identity, value is always 1.",
	}, []string{"service", "version"})

	recoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recovery_attempts_total",
		Help: "Recovery attempts by outcome.",
	}, []string{"outcome"})

	custodyOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_ops_total",
		Help: "Custody share operations by action and outcome.",
	}, []string{"action", "outcome"})

	tokenOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "token_ops_total",
		Help: "Token build and rotation operations by action and outcome.",
	}, []string{"action", "outcome"})

	ratelimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_rejections_total",
		Help: "Requests rejected by the rate limiter, by scope.",
	}, []string{"scope"})
)

// RecordRecoveryAttempt counts one recovery attempt.
func RecordRecoveryAttempt(outcome string) {
	recoveryAttempts.WithLabelValues(outcome).Inc()
}

// RecordCustodyOp counts one custody share operation.
func RecordCustodyOp(action, outcome string) {
	custodyOps.WithLabelValues(action, outcome).Inc()
}

// RecordTokenOp counts one token build or rotation.
func RecordTokenOp(action, outcome string) {
	tokenOps.WithLabelValues(action, outcome).Inc()
}

// RecordRateLimitRejection counts one rate-limited request. Scope is the
// limiter scope that tripped, identity or origin.
func RecordRateLimitRejection(scope string) {
	ratelimitRejections.WithLabelValues(scope).Inc()
}

// MetricsServer serves the Prometheus registry over HTTP.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server bound to addr.
func New(service, addr string) *MetricsServer {
	serviceInfo.WithLabelValues(service, common.Version).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks serving the scrape endpoint.
func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics listener.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
