package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPRequests_attachesContextLogger(t *testing.T) {
	logger := zerolog.Nop()
	middleware := NewHTTPRequests(logger)

	var sawLogger bool
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = zerolog.Ctx(r.Context()) != nil
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/trusts", nil)

	handler.ServeHTTP(w, r)

	require.True(t, sawLogger)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestStatusRecorder_capturesStatus(t *testing.T) {
	middleware := NewHTTPRequests(zerolog.Nop())

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusRecorder_flushReachesUnderlyingWriter(t *testing.T) {
	middleware := NewHTTPRequests(zerolog.Nop())

	// Streaming responses (e.g. the reverse proxy) flush through
	// http.ResponseController, which walks Unwrap to find the real writer.
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("chunk"))
		require.NoError(t, http.NewResponseController(w).Flush())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	require.True(t, w.Flushed)
	require.Equal(t, "chunk", w.Body.String())
}
