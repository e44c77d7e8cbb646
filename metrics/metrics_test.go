package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestMiddleware(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(RequestMiddleware(m))
	r.Get("/get/{uuid}/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
	})

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/get/abc/media/0$1", nil))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("/get/{uuid}/*", "GET", "206")))
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncSOAPAction("ContentDirectory", "Browse")
	m.AddBytesStreamed(1024)
	m.AddBytesStreamed(-5)
	m.SetActiveSessions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.soapActions.WithLabelValues("ContentDirectory", "Browse")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.bytesStreamed))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeSessions))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.IncSOAPAction("a", "b")
	m.AddBytesStreamed(10)
	m.SetActiveSessions(1)

	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler(t *testing.T) {
	m := New()
	m.AddBytesStreamed(1)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "dms_bytes_streamed_total 1")
}
