package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.Signups.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Signups))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Signups))
}

func TestHandler_ExposesCounters(t *testing.T) {
	m := New()
	m.Mints.WithLabelValues(MintMinted).Inc()
	m.Logins.WithLabelValues("ok").Add(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `educhain_mints_total{outcome="minted"} 1`))
	assert.True(t, strings.Contains(body, `educhain_logins_total{result="ok"} 2`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
