package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/neffi/trustgate/internal/telemetry"
)

// Proxy forwards /api/* requests to the upstream application server,
// translating upstream unavailability into a structured 503 instead of a
// dropped connection. It performs no retries; re-issuing a failed request
// is the client's decision.
type Proxy struct {
	upstream *url.URL
	inner    *httputil.ReverseProxy
}

// New creates a reverse proxy for the given upstream origin
// (e.g. http://localhost:8080). Paths are forwarded unchanged, so the
// /api prefix the browser sent is preserved.
func New(upstream string) (*Proxy, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("upstream URL must be absolute: %q", upstream)
	}

	p := &Proxy{upstream: target}

	p.inner = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.Out.Host = target.Host
			r.SetXForwarded()
		},
		ErrorHandler: p.errorHandler,
	}

	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := telemetry.GetMetrics()
	m.ProxyRequestsTotal.Add(r.Context(), 1)

	start := time.Now()
	p.inner.ServeHTTP(w, r)
	m.ProxyDuration.Record(r.Context(), float64(time.Since(start).Milliseconds()))
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	telemetry.GetMetrics().ProxyErrorsTotal.Add(r.Context(), 1)

	log.Error().
		Err(err).
		Str("upstream", p.upstream.String()).
		Str("path", r.URL.Path).
		Msg("upstream unavailable")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "backend unavailable",
		"message": fmt.Sprintf("the application server at %s is not reachable; make sure it is running", p.upstream),
	})
}
