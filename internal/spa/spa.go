// Package spa serves the built single-page application from disk.
package spa

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Handler serves static assets from a build directory. Requests for
// paths that don't match a file on disk fall back to index.html so the
// client-side router can resolve them. API paths never fall back; a
// missing /api route is a 404, not a page.
type Handler struct {
	dir    string
	static http.Handler
}

// New creates a handler serving the SPA build at dir
// (e.g. ./client/dist).
func New(dir string) *Handler {
	return &Handler{
		dir:    dir,
		static: http.FileServer(http.Dir(dir)),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api" {
		http.NotFound(w, r)
		return
	}

	name := filepath.Join(h.dir, filepath.Clean("/"+r.URL.Path))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		h.static.ServeHTTP(w, r)
		return
	}

	// Client-side route, or the root. Serve the app shell and let the
	// browser router take it from there.
	http.ServeFile(w, r, filepath.Join(h.dir, "index.html"))
}
