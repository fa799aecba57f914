// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Portal  PortalConfig  `mapstructure:"portal"`
	Browser BrowserConfig `mapstructure:"browser"`
	Poll    PollConfig    `mapstructure:"poll"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// PortalConfig identifies the utility portal and the account to log in with.
type PortalConfig struct {
	Email           string `mapstructure:"email"`
	Password        string `mapstructure:"password"`
	LoginURL        string `mapstructure:"login_url"`
	ConsumptionURL  string `mapstructure:"consumption_url"`
	IdPURLPrefix    string `mapstructure:"idp_url_prefix"`
	PortalURLPrefix string `mapstructure:"portal_url_prefix"`
}

// BrowserConfig configures the headless browser session driver.
type BrowserConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	NavTimeoutSec    int    `mapstructure:"nav_timeout_seconds"`
	LoginTimeoutSec  int    `mapstructure:"login_timeout_seconds"`
	RenderTimeoutSec int    `mapstructure:"render_timeout_seconds"`
	RenderPollMillis int    `mapstructure:"render_poll_millis"`
	SkipPreflight    bool   `mapstructure:"skip_preflight"`
}

// PollConfig governs the adaptive scrape schedule.
type PollConfig struct {
	IdleSeconds       int `mapstructure:"idle_seconds"`
	ProbeAfterMinutes int `mapstructure:"probe_after_minutes"`
	ProbeSeconds      int `mapstructure:"probe_seconds"`
	ProbeMaxMinutes   int `mapstructure:"probe_max_minutes"`
	MinSeconds        int `mapstructure:"min_seconds"`
	JitterSeconds     int `mapstructure:"jitter_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COMPANION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	// Registered empty so AutomaticEnv can populate them without a config file.
	v.SetDefault("portal.email", "")
	v.SetDefault("portal.password", "")
	v.SetDefault("portal.login_url", "https://www.minvandforsyning.dk/LoginIntermediate")
	v.SetDefault("portal.consumption_url", "https://www.minvandforsyning.dk/forbrug")
	v.SetDefault("portal.idp_url_prefix", "https://id.ramboll.com/")
	v.SetDefault("portal.portal_url_prefix", "https://www.minvandforsyning.dk/")
	v.SetDefault("browser.user_agent", "minvand-companion/1.0")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.login_timeout_seconds", 60)
	v.SetDefault("browser.render_timeout_seconds", 60)
	v.SetDefault("browser.render_poll_millis", 500)
	v.SetDefault("poll.idle_seconds", 1800)
	v.SetDefault("poll.probe_after_minutes", 45)
	v.SetDefault("poll.probe_seconds", 120)
	v.SetDefault("poll.probe_max_minutes", 20)
	v.SetDefault("poll.min_seconds", 30)
	v.SetDefault("poll.jitter_seconds", 15)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits. Config errors are
// the only class of failure that aborts the process.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Portal.Email == "" {
		return fmt.Errorf("portal.email must be set")
	}
	if c.Portal.Password == "" {
		return fmt.Errorf("portal.password must be set")
	}
	if c.Portal.LoginURL == "" || c.Portal.ConsumptionURL == "" {
		return fmt.Errorf("portal.login_url and portal.consumption_url must be set")
	}
	if c.Browser.RenderTimeoutSec <= 0 {
		return fmt.Errorf("browser.render_timeout_seconds must be > 0")
	}
	if c.Browser.RenderPollMillis <= 0 {
		return fmt.Errorf("browser.render_poll_millis must be > 0")
	}
	if c.Poll.IdleSeconds <= 0 {
		return fmt.Errorf("poll.idle_seconds must be > 0")
	}
	if c.Poll.MinSeconds <= 0 {
		return fmt.Errorf("poll.min_seconds must be > 0")
	}
	if c.Poll.IdleSeconds < c.Poll.MinSeconds {
		return fmt.Errorf("poll.idle_seconds must be >= poll.min_seconds")
	}
	return nil
}

// NavTimeout returns the per-navigation budget.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// LoginTimeout returns the per-login-step budget.
func (c BrowserConfig) LoginTimeout() time.Duration {
	return time.Duration(c.LoginTimeoutSec) * time.Second
}

// RenderTimeout returns the render-completion wait budget.
func (c BrowserConfig) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutSec) * time.Second
}

// RenderPoll returns the interval between render-completion checks.
func (c BrowserConfig) RenderPoll() time.Duration {
	return time.Duration(c.RenderPollMillis) * time.Millisecond
}
