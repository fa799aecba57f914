package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
portal:
  email: user@example.com
  password: hunter2
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "https://www.minvandforsyning.dk/LoginIntermediate", cfg.Portal.LoginURL)
	require.Equal(t, "https://www.minvandforsyning.dk/forbrug", cfg.Portal.ConsumptionURL)
	require.Equal(t, "https://id.ramboll.com/", cfg.Portal.IdPURLPrefix)
	require.Equal(t, 1800, cfg.Poll.IdleSeconds)
	require.Equal(t, 45, cfg.Poll.ProbeAfterMinutes)
	require.Equal(t, 120, cfg.Poll.ProbeSeconds)
	require.Equal(t, 20, cfg.Poll.ProbeMaxMinutes)
	require.Equal(t, 30, cfg.Poll.MinSeconds)
	require.Equal(t, 15, cfg.Poll.JitterSeconds)
	require.Equal(t, 60, cfg.Browser.RenderTimeoutSec)
}

func TestLoad_MissingCredentials(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
`)

	_, err := Load(path)

	require.Error(t, err)
	require.Contains(t, err.Error(), "portal.email")
}

func TestLoad_MissingPassword(t *testing.T) {
	path := writeConfigFile(t, `
portal:
  email: user@example.com
`)

	_, err := Load(path)

	require.Error(t, err)
	require.Contains(t, err.Error(), "portal.password")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("COMPANION_PORTAL_EMAIL", "env@example.com")
	t.Setenv("COMPANION_PORTAL_PASSWORD", "secret")
	t.Setenv("COMPANION_POLL_IDLE_SECONDS", "600")

	cfg, err := Load("")

	require.NoError(t, err)
	require.Equal(t, "env@example.com", cfg.Portal.Email)
	require.Equal(t, 600, cfg.Poll.IdleSeconds)
}

func TestValidate_RejectsIdleBelowMin(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:  ServerConfig{Port: 8080},
		Portal:  PortalConfig{Email: "a@b.c", Password: "p", LoginURL: "x", ConsumptionURL: "y"},
		Browser: BrowserConfig{RenderTimeoutSec: 60, RenderPollMillis: 500},
		Poll:    PollConfig{IdleSeconds: 10, MinSeconds: 30},
	}

	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadPort(t *testing.T) {
	t.Parallel()

	cfg := Config{Server: ServerConfig{Port: 0}}

	require.Error(t, cfg.Validate())
}
