package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	r.ObserveEvaluation("filled", 0.001)
	r.IncRejection("min_notional")
	r.IncTrim()
	r.IncAutoRebalance()
	r.IncDividend("announced")
}

func TestCounters(t *testing.T) {
	r := New()

	r.ObserveEvaluation("filled", 0.002)
	r.ObserveEvaluation("filled", 0.004)
	r.ObserveEvaluation("rejected", 0.001)
	r.IncRejection("daily_cap")
	r.IncTrim()
	r.IncDividend("paid")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Evaluations.WithLabelValues("filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Evaluations.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Rejections.WithLabelValues("daily_cap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Trims))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.DividendTransitions.WithLabelValues("paid")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.IncTrim()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "tradecell_guardrail_trims_total 1")
}
