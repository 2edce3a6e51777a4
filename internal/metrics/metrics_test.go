package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveSync(t *testing.T) {
	m := New()
	m.ObserveSync(OutcomeSuccess, 10*time.Millisecond)
	m.ObserveSync(OutcomeSuccess, 20*time.Millisecond)
	m.ObserveSync(OutcomeInvalid, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.syncs.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncs.WithLabelValues(OutcomeInvalid)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.syncSeconds))
}

func TestAddRows(t *testing.T) {
	m := New()
	m.AddRows("page", "created", 3)
	m.AddRows("page", "created", 0)
	m.AddRowErrors(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.rows.WithLabelValues("page", "created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rowErrors))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSync(OutcomeError, time.Second)
	m.AddRows("page", "hidden", 1)
	m.AddRowErrors(1)
	m.CacheLookup(true)
	m.WatchSSEClients(func() int { return 1 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler(t *testing.T) {
	m := New()
	m.CacheLookup(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `craftwiki_outline_cache_requests_total{result="miss"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}

func TestWatchSSEClients(t *testing.T) {
	m := New()
	n := 2
	m.WatchSSEClients(func() int { return n })

	body := func() string {
		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		return rec.Body.String()
	}
	assert.Contains(t, body(), "craftwiki_sse_clients 2")
	n = 0
	assert.Contains(t, body(), "craftwiki_sse_clients 0")
}
