package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bigwolfeman/document-mcp/internal/oracle"
)

// metricsSet is C13's prometheus surface: a private registry (never a
// package-level global, per spec §9's anti-global-mutable-state flag) so
// multiple Server instances in the same process (tests) don't collide on
// prometheus's default registry.
type metricsSet struct {
	registry    *prometheus.Registry
	httpTotal   *prometheus.CounterVec
	oracleTurns prometheus.Histogram
}

func newMetricsSet() *metricsSet {
	reg := prometheus.NewRegistry()
	m := &metricsSet{
		registry: reg,
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_http_requests_total",
			Help: "Total HTTP requests served by the façade, by route and status.",
		}, []string{"route", "status"}),
		oracleTurns: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_oracle_turns",
			Help:    "Number of agent-loop turns an Oracle query took before terminating.",
			Buckets: prometheus.LinearBuckets(1, 1, oracle.MaxTurns),
		}),
	}
	reg.MustRegister(m.httpTotal, m.oracleTurns)
	return m
}

// statusRecorder captures the status code a handler wrote, grounded on
// the common net/http ResponseWriter-wrapping idiom (not a library
// concern; there is no recorder in the corpus worth depending on for
// three lines of bookkeeping).
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withMetrics wraps a handler to count requests by route and status in
// the private registry (C13).
func (s *Server) withMetrics(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.httpTotal.WithLabelValues(route, itoa(rec.status)).Inc()
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// countTurns approximates the agent-loop turn count from a completed
// Query's chunk sequence (one turn per tool_call batch, plus the final
// content-only turn), for the oracle_turns histogram.
func countTurns(chunks []oracle.Chunk) int {
	turns := 1
	prev := ""
	for _, c := range chunks {
		if c.Type == "tool_call" && prev != "tool_call" {
			turns++
		}
		prev = c.Type
	}
	return turns
}
