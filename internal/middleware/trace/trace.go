// Package trace assigns request IDs and logs one completion record per
// request.
package trace

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gagyebu/internal/log"
)

// HeaderRequestID carries the request ID in both directions.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// Middleware counts requests and attaches a request-scoped logger.
type Middleware struct {
	clientIP func(*http.Request) string
	logger   *log.Logger

	requests     atomic.Int64
	serverErrors atomic.Int64
	elapsedMicro atomic.Int64
}

type Metrics struct {
	TotalRequests       int64
	ServerErrors        int64
	AverageResponseTime int64 // microseconds
}

// NewMiddleware logs with logger; clientIP may be nil.
func NewMiddleware(logger *log.Logger, clientIP func(*http.Request) string) *Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return &Middleware{
		clientIP: clientIP,
		logger:   logger.WithComponent(log.ComponentTrace),
	}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		var ip string
		if m.clientIP != nil {
			ip = m.clientIP(r)
		}

		id := requestID(r)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = log.WithContext(ctx, log.FromContext(ctx).With(log.FieldRequestID, id))
		r = r.WithContext(ctx)
		w.Header().Set(HeaderRequestID, id)

		events := log.NewStructuredLogger(m.logger.With(log.FieldRequestID, id))
		events.LogRequestStart(ctx, r, ip)
		m.requests.Add(1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		m.elapsedMicro.Add(elapsed.Microseconds())
		if rec.status >= http.StatusInternalServerError {
			m.serverErrors.Add(1)
		}
		events.LogRequestEnd(ctx, r, rec.status, elapsed, ip)
	})
}

// requestID reuses an inbound UUID so a proxy's ID survives into our logs.
// Anything else is replaced.
func requestID(r *http.Request) string {
	if in := r.Header.Get(HeaderRequestID); in != "" {
		if id, err := uuid.Parse(in); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}

// RequestID returns the ID assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (m *Middleware) GetMetrics() Metrics {
	n := m.requests.Load()
	var avg int64
	if n > 0 {
		avg = m.elapsedMicro.Load() / n
	}
	return Metrics{TotalRequests: n, ServerErrors: m.serverErrors.Load(), AverageResponseTime: avg}
}

// statusRecorder keeps the first status written. It forwards Flush and
// Hijack so htmx streaming and the WebSocket upgrade still work.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.written {
		s.status = code
		s.written = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.written = true
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("trace: response writer cannot be hijacked")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
