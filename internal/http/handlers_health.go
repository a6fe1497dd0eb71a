package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type healthReport struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
	Live      *liveReport       `json:"live,omitempty"`
}

type liveReport struct {
	Subscriptions int   `json:"subscriptions"`
	Connections   int64 `json:"websocket_connections"`
	Watchers      int   `json:"auth_watchers"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth answers liveness probes without touching dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	writeJSON(w, http.StatusOK, healthReport{
		Status:    "ok",
		Timestamp: now.Format(time.RFC3339),
		Uptime:    now.Sub(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady reports 503 until templates are parsed and the store answers
// a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	report := healthReport{Status: "ready", Checks: map[string]string{}}
	check := func(name string, err error) {
		if err == nil {
			report.Checks[name] = "ok"
			return
		}
		report.Checks[name] = "failed: " + err.Error()
		report.Status = "not_ready"
	}

	if s.templates == nil {
		check("templates", errors.New("templates not loaded"))
	} else {
		check("templates", nil)
	}
	if s.store == nil {
		check("store", errors.New("not configured"))
	} else {
		check("store", s.store.Ping(ctx))
	}
	if s.hub != nil {
		report.Live = &liveReport{
			Subscriptions: s.hub.Subscribers(),
			Connections:   s.wsConns.Load(),
			Watchers:      s.auth.Watchers(),
		}
	}
	report.Timestamp = s.now().Format(time.RFC3339)

	status := http.StatusOK
	if report.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// handleMetrics writes counters and gauges in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.tracer.GetMetrics()
	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_server_errors_total", "Total number of 5xx responses", traceMetrics.ServerErrors)
	counter("transactions_saved_total", "Transactions created or updated", s.saved.Load())
	counter("transactions_deleted_total", "Transactions deleted", s.deleted.Load())

	if s.cache != nil {
		st := s.cache.Stats()
		counter("cache_hits_total", "Total month cache hits", int64(st.Hits))
		counter("cache_misses_total", "Total month cache misses", int64(st.Misses))
		gauge("cache_entries", "Current month cache entries", int64(st.Size))
	}

	counter("rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.Rejected)
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.Clients)

	if s.hub != nil {
		gauge("live_subscriptions", "Open live query subscriptions", int64(s.hub.Subscribers()))
	}
	gauge("websocket_connections", "Open WebSocket connections", s.wsConns.Load())
	gauge("auth_watchers", "Open current-user subscriptions", int64(s.auth.Watchers()))

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", s.now().Sub(s.startedAt).Seconds())
}
