package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInit_Idempotent(t *testing.T) {
	Init()
	require.NotPanics(t, Init)
}

func TestObserveHelpers(t *testing.T) {
	Init()

	require.NotPanics(t, func() {
		ObserveCycle("success", 12*time.Second)
		ObserveCycle("LoginRejected", 3*time.Second)
		SetReading(442.627, time.Date(2025, time.December, 17, 20, 54, 0, 0, time.Local))
		ObserveHTTPRequest(http.MethodGet, "/state", http.StatusOK, 2*time.Millisecond)
	})
}

func TestHandler_ServesMetrics(t *testing.T) {
	Init()
	ObserveCycle("success", time.Second)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "companion_scrape_cycles_total")
}
