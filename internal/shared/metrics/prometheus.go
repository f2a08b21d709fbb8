package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	policiesNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "policies_normalized_total",
			Help: "Total number of policy documents normalized into records",
		},
		[]string{"insurer", "policy_type"},
	)

	extractionIncomplete = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "policy_extraction_incomplete_total",
			Help: "Total number of extractions rejected as incomplete or low-confidence",
		},
	)

	matchesEvaluated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coverage_matches_total",
			Help: "Total number of coverage match outcomes",
		},
		[]string{"outcome"},
	)

	plansBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_plans_total",
			Help: "Total number of claim plans produced by the optimizer",
		},
		[]string{"feasible"},
	)

	planRecoveredValue = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "claim_plan_expected_payout",
			Help:    "Total expected payout of produced claim plans",
			Buckets: prometheus.ExponentialBuckets(100, 4, 8),
		},
	)

	claimsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "claims_created_total",
			Help: "Total number of claims created from accepted plans",
		},
	)

	claimTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claim_transitions_total",
			Help: "Total number of claim status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	claimTransitionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "claim_transition_conflicts_total",
			Help: "Total number of transitions rejected on a stale claim version",
		},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries appended",
		},
	)

	insurerSyncUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insurer_sync_updates_total",
			Help: "Total number of status updates pulled from insurer core systems",
		},
		[]string{"source", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordPolicyNormalized records a successful policy normalization
func RecordPolicyNormalized(insurer, policyType string) {
	policiesNormalized.WithLabelValues(insurer, policyType).Inc()
}

// RecordExtractionIncomplete records a rejected extraction
func RecordExtractionIncomplete() {
	extractionIncomplete.Inc()
}

// RecordMatchOutcome records a match evaluation outcome
// (matched, excluded, waiting_period, no_match)
func RecordMatchOutcome(outcome string) {
	matchesEvaluated.WithLabelValues(outcome).Inc()
}

// RecordPlanBuilt records an optimizer run
func RecordPlanBuilt(feasible bool, totalPayout float64) {
	label := "true"
	if !feasible {
		label = "false"
	}
	plansBuilt.WithLabelValues(label).Inc()
	planRecoveredValue.Observe(totalPayout)
}

// RecordClaimCreated records a claim created from an accepted plan
func RecordClaimCreated() {
	claimsCreated.Inc()
}

// RecordClaimTransition records a claim status transition
func RecordClaimTransition(fromStatus, toStatus string) {
	claimTransitions.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordClaimTransitionConflict records a stale-version rejection
func RecordClaimTransitionConflict() {
	claimTransitionConflicts.Inc()
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordInsurerSyncUpdate records a status update from an insurer core system
func RecordInsurerSyncUpdate(source, status string) {
	insurerSyncUpdates.WithLabelValues(source, status).Inc()
}
