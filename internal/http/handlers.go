package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.deps.Ledger == nil || s.deps.Categories == nil || s.deps.Budgets == nil ||
		s.deps.Engine == nil || s.deps.Scoring == nil {
		checks["stores"] = "not_configured"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["stores"] = "ok"
	}

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["dependencies"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["dependencies"] = "ok"
		}
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides request and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	fmt.Fprintf(w, "# HELP ledger_uptime_seconds Time since server start\n")
	fmt.Fprintf(w, "ledger_uptime_seconds %.0f\n", time.Since(s.started).Seconds())
	fmt.Fprintf(w, "# HELP ledger_requests_total Total HTTP requests\n")
	fmt.Fprintf(w, "ledger_requests_total %d\n", traceMetrics.TotalRequests)
	fmt.Fprintf(w, "# HELP ledger_response_time_avg_microseconds Average response time\n")
	fmt.Fprintf(w, "ledger_response_time_avg_microseconds %d\n", traceMetrics.AverageResponseTime)
	fmt.Fprintf(w, "# HELP ledger_rate_limit_hits_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "ledger_rate_limit_hits_total %d\n", rateLimitMetrics.TotalHits)
	fmt.Fprintf(w, "ledger_rate_limit_clients %d\n", rateLimitMetrics.ClientCount)
	fmt.Fprintf(w, "# HELP ledger_suspicious_requests_total Requests matching attack patterns\n")
	fmt.Fprintf(w, "ledger_suspicious_requests_total %d\n", securityMetrics.SuspiciousRequests)
	fmt.Fprintf(w, "ledger_invalid_ip_attempts_total %d\n", securityMetrics.InvalidIPAttempts)
}
