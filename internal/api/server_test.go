package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/minvand/companion/internal/meter"
	"github.com/minvand/companion/internal/snapshot"
)

func doGet(t *testing.T, server *Server, path string) (*httptest.ResponseRecorder, stateResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var body stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func successStore() *snapshot.Store {
	reading := meter.Reading{
		Volume: 442.627,
		ReadAt: time.Date(2025, time.December, 17, 20, 54, 0, 0, time.Local),
	}
	snap := snapshot.Success(reading, "kl. 20.54, d. 17.12.2025, aflæst til: 442,627 m³",
		time.Date(2025, time.December, 17, 21, 0, 0, 0, time.UTC))
	return snapshot.NewStore(snap)
}

func TestGetState_BeforeFirstCycle(t *testing.T) {
	t.Parallel()

	store := snapshot.NewStore(snapshot.NotStarted(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)))
	server := NewServer(store, nil)

	rec, body := doGet(t, server, "/state")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.False(t, body.OK)
	require.NotNil(t, body.Error)
	require.Equal(t, "not started", *body.Error)
	require.Nil(t, body.ReadingM3)
	require.Nil(t, body.ReadAtISO)
	require.Nil(t, body.Raw)
}

func TestGetStateRaw_BeforeFirstCycle(t *testing.T) {
	t.Parallel()

	store := snapshot.NewStore(snapshot.NotStarted(time.Now()))
	server := NewServer(store, nil)

	rec, body := doGet(t, server, "/state_raw")

	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, body.OK)
	require.NotNil(t, body.Error)
	require.Equal(t, "not started", *body.Error)
}

func TestGetState_Success(t *testing.T) {
	t.Parallel()

	server := NewServer(successStore(), nil)

	rec, body := doGet(t, server, "/state")

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, body.OK)
	require.Nil(t, body.Error)
	require.NotNil(t, body.ReadingM3)
	require.InDelta(t, 442.627, *body.ReadingM3, 1e-9)
	require.NotNil(t, body.ReadAtISO)
	require.Equal(t, "2025-12-17T20:54:00", *body.ReadAtISO)
	require.Equal(t, "2025-12-17T21:00:00Z", body.ScrapedAtUTC)
	require.NotNil(t, body.Raw)
	require.Contains(t, *body.Raw, "442,627")
}

func TestGetState_ErrorIsNullOnSuccess(t *testing.T) {
	t.Parallel()

	server := NewServer(successStore(), nil)

	rec, _ := doGet(t, server, "/state")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Contains(t, raw, "error")
	require.Nil(t, raw["error"])
}

func TestGetState_FlipsTo503AfterFailure(t *testing.T) {
	t.Parallel()

	store := successStore()
	server := NewServer(store, nil)

	rec, _ := doGet(t, server, "/state")
	require.Equal(t, http.StatusOK, rec.Code)

	// A later failed cycle keeps the last reading for observability.
	prev := store.Get()
	fail := snapshot.Failure("RenderTimeout: reading not rendered within 1m0s", time.Now())
	fail.Reading = prev.Reading
	fail.Raw = prev.Raw
	store.Set(fail)

	rec, body := doGet(t, server, "/state")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.False(t, body.OK)
	require.NotNil(t, body.Error)
	require.Contains(t, *body.Error, "RenderTimeout")

	rec, body = doGet(t, server, "/state_raw")
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, body.OK)
	require.NotNil(t, body.ReadingM3, "state_raw retains the last known reading")
	require.InDelta(t, 442.627, *body.ReadingM3, 1e-9)
}

func TestGetStateRaw_SurfacesLoginRejection(t *testing.T) {
	t.Parallel()

	store := snapshot.NewStore(snapshot.Failure(
		"LoginRejected: identity provider reported invalid credentials", time.Now()))
	server := NewServer(store, nil)

	stateRec, _ := doGet(t, server, "/state")
	require.Equal(t, http.StatusServiceUnavailable, stateRec.Code)

	rawRec, body := doGet(t, server, "/state_raw")
	require.Equal(t, http.StatusOK, rawRec.Code)
	require.NotNil(t, body.Error)
	require.Contains(t, *body.Error, "LoginRejected")
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	server := NewServer(snapshot.NewStore(snapshot.NotStarted(time.Now())), nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	t.Parallel()

	server := NewServer(snapshot.NewStore(snapshot.NotStarted(time.Now())), nil)

	req := httptest.NewRequest(http.MethodGet, "/state_raw", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestStateEndpointsAreReadOnly(t *testing.T) {
	t.Parallel()

	store := snapshot.NewStore(snapshot.NotStarted(time.Now()))
	server := NewServer(store, nil)
	before := store.Get()

	doGet(t, server, "/state")
	doGet(t, server, "/state_raw")

	require.Equal(t, before, store.Get())
}
