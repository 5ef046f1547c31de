package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveImport(t *testing.T) {
	m := NewManager()

	m.ObserveImport("link", "completed", 2*time.Second, 1, 4)
	m.ObserveImport("link", "failed", time.Second, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.imports.WithLabelValues("link", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imports.WithLabelValues("link", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importedFiles.WithLabelValues("copied")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.importedFiles.WithLabelValues("linked")))
}

func TestObserveVerificationAndCovers(t *testing.T) {
	m := NewManager()

	m.ObserveVerification("verified")
	m.ObserveVerification("verified")
	m.ObserveCoverAttempt()
	m.ObserveCoverResult("found")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.verifications.WithLabelValues("verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.coverAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.coverResults.WithLabelValues("found")))
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := NewManager()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/history/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/history/{id}", "404")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "audiofinder_http_requests_total"))
}
