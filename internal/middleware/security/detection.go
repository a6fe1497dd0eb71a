// Package security sets response headers, resolves client addresses behind
// proxies and turns away scanner traffic.
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"

	"gagyebu/internal/log"
)

type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// rule flags one kind of probe. Only the name reaches the logs.
type rule struct {
	name  string
	match func(r *http.Request) bool
}

var (
	probeFragments = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", "etc/passwd", "cmd.exe",
		"<script", "javascript:", "eval(", "union select",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}
)

var rules = []rule{
	{"path", func(r *http.Request) bool { return mentions(r.URL.Path, probeFragments) }},
	{"query", func(r *http.Request) bool { return mentions(r.URL.RawQuery, probeFragments) }},
	{"agent", func(r *http.Request) bool { return mentions(r.UserAgent(), scannerAgents) }},
	{"method", func(r *http.Request) bool {
		switch r.Method {
		case http.MethodTrace, http.MethodConnect, "TRACK", "DEBUG":
			return true
		}
		return false
	}},
	{"length", func(r *http.Request) bool { return len(r.URL.String()) > 2048 }},
	{"hops", func(r *http.Request) bool { return strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 }},
}

func mentions(s string, fragments []string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// Detector resolves client IPs and counts probes. Loopback and private
// ranges are trusted as proxies out of the box.
type Detector struct {
	mu      sync.RWMutex
	trusted []netip.Prefix

	suspicious atomic.Int64
	invalidIP  atomic.Int64
}

func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"} {
		d.trusted = append(d.trusted, netip.MustParsePrefix(cidr))
	}
	return d
}

// AddTrustedProxy trusts forwarded headers from peers inside cidr.
func (d *Detector) AddTrustedProxy(cidr string) error {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trusted = append(d.trusted, p.Masked())
	return nil
}

func (d *Detector) trusts(a netip.Addr) bool {
	a = a.Unmap()
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// match returns the first rule r trips, or "".
func (d *Detector) match(r *http.Request) string {
	for _, ru := range rules {
		if ru.match(r) {
			d.suspicious.Add(1)
			return ru.name
		}
	}
	return ""
}

// DetectSuspiciousRequest reports whether r looks like a probe.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	return d.match(r) != ""
}

// ExtractClientIP returns the address of the client behind any trusted
// proxies. X-Forwarded-For is read right to left so a client cannot spoof
// its way past the nearest untrusted hop.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		d.invalidIP.Add(1)
		return peer
	}
	if !d.trusts(addr) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			a, err := netip.ParseAddr(hop)
			if err != nil {
				d.invalidIP.Add(1)
				break
			}
			if i == 0 || !d.trusts(a) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if _, err := netip.ParseAddr(xri); err == nil {
			return xri
		}
		d.invalidIP.Add(1)
	}
	return peer
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIP.Load(),
	}
}

// Middleware answers probes with a plain 404 so scanners learn nothing.
func (d *Detector) Middleware(logger *log.Logger) func(http.Handler) http.Handler {
	logger = logger.WithComponent(log.ComponentSecurity)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason := d.match(r); reason != "" {
				logger.WarnContext(r.Context(), "Suspicious request blocked",
					"rule", reason,
					log.FieldMethod, r.Method,
					log.FieldPath, r.URL.Path,
					log.FieldClientIP, d.ExtractClientIP(r),
					log.FieldUserAgent, r.UserAgent())
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
