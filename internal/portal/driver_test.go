package portal

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestError_MessageCarriesKind(t *testing.T) {
	t.Parallel()

	err := newError(KindLoginRejected, errors.New("identity provider reported invalid credentials"))

	require.Contains(t, err.Error(), "LoginRejected")
	require.Contains(t, err.Error(), "invalid credentials")
}

func TestError_KindOnlyWhenNoCause(t *testing.T) {
	t.Parallel()

	err := newError(KindRenderTimeout, nil)

	require.Equal(t, "RenderTimeout", err.Error())
}

func TestError_UnwrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := newError(KindNavigationFailed, cause)

	require.ErrorIs(t, err, cause)

	var driverErr *Error
	require.ErrorAs(t, err, &driverErr)
	require.Equal(t, KindNavigationFailed, driverErr.Kind)
}

func TestNewDriver_AppliesDefaults(t *testing.T) {
	t.Parallel()

	d := NewDriver(Config{LoginURL: "https://example.com/login"}, nil)

	require.Equal(t, 30*time.Second, d.cfg.NavTimeout)
	require.Equal(t, 60*time.Second, d.cfg.LoginTimeout)
	require.Equal(t, 60*time.Second, d.cfg.RenderTimeout)
	require.Equal(t, 500*time.Millisecond, d.cfg.RenderPoll)
}

func TestPreflight_ReachablePortal(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body>login</body></html>"))
	}))
	defer srv.Close()

	d := NewDriver(Config{LoginURL: srv.URL, NavTimeout: 2 * time.Second}, nil)

	require.NoError(t, d.preflight())
}

func TestPreflight_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDriver(Config{LoginURL: srv.URL, NavTimeout: 2 * time.Second}, nil)

	require.Error(t, d.preflight())
}

func TestPreflight_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := NewDriver(Config{LoginURL: url, NavTimeout: 2 * time.Second}, nil)

	require.Error(t, d.preflight())
}
