package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncEnqueued()
	m.IncReplaced()
	m.IncSent()
	m.IncFailed()
	m.IncDropped()
	m.ObserveRequest("submitAnswer", time.Millisecond, nil)
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncEnqueued()
	m.IncEnqueued()
	m.IncReplaced()
	m.ObserveRequest("submitPage", 20*time.Millisecond, nil)
	m.ObserveRequest("submitPage", 20*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AutosaveEnqueued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AutosaveReplaced))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCounter.WithLabelValues("submitPage", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCounter.WithLabelValues("submitPage", "error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.IncSent()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "mathdrill_autosave_sent_total 1"))
}
