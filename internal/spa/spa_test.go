package spa

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newFixtureHandler(t *testing.T) *Handler {
	t.Helper()
	dir := t.TempDir()
	writeFixture(t, dir, "index.html", "<html>app shell</html>")
	writeFixture(t, dir, "assets/app.js", "console.log('app')")
	return New(dir)
}

func TestHandler_servesStaticAsset(t *testing.T) {
	h := newFixtureHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "console.log('app')", w.Body.String())
}

func TestHandler_fallsBackToIndex(t *testing.T) {
	h := newFixtureHandler(t)

	for _, path := range []string{"/", "/trusts", "/trusts/42/contracts", "/validate-clients"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusOK, w.Code, path)
		require.Equal(t, "<html>app shell</html>", w.Body.String(), path)
	}
}

func TestHandler_neverFallsBackForAPI(t *testing.T) {
	h := newFixtureHandler(t)

	for _, path := range []string{"/api", "/api/trusts", "/api/auth/me"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		require.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestHandler_blocksTraversal(t *testing.T) {
	h := newFixtureHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil))

	// The disk lookup cleans the path and ServeFile refuses ".." outright.
	require.Equal(t, http.StatusBadRequest, w.Code)
}
