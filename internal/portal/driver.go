// Package portal drives a headless browser through the utility portal's
// identity-provider login flow and returns the rendered consumption page
// text once the meter reading has appeared.
package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/minvand/companion/internal/meter"
)

// Credentials identify the portal account. They are opaque to the driver and
// immutable for the process lifetime.
type Credentials struct {
	Email    string
	Password string
}

// Config controls the session driver.
type Config struct {
	// LoginURL is the portal's login entry point; it redirects to the IdP.
	LoginURL string
	// ConsumptionURL is the dashboard page carrying the meter reading.
	ConsumptionURL string
	// IdPURLPrefix marks the identity provider's origin.
	IdPURLPrefix string
	// PortalURLPrefix marks the portal's origin, reached again after login.
	PortalURLPrefix string
	UserAgent       string
	// NavTimeout bounds each plain navigation step.
	NavTimeout time.Duration
	// LoginTimeout bounds each authentication step (redirect waits, form).
	LoginTimeout time.Duration
	// RenderTimeout bounds the wait for the asynchronously populated value.
	RenderTimeout time.Duration
	// RenderPoll is the interval between render-completion checks.
	RenderPoll time.Duration
	// SkipPreflight disables the cheap HTTP reachability probe that runs
	// before a browser is launched.
	SkipPreflight bool
}

func (c Config) withDefaults() Config {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 60 * time.Second
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 60 * time.Second
	}
	if c.RenderPoll <= 0 {
		c.RenderPoll = 500 * time.Millisecond
	}
	return c
}

// Driver performs one clean login-and-scrape attempt per invocation, with
// bounded time at each step and guaranteed browser teardown. Retry policy
// belongs to the scheduler, not here.
type Driver struct {
	cfg    Config
	logger *zap.Logger
}

// NewDriver creates a Driver with the given configuration.
func NewDriver(cfg Config, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{cfg: cfg.withDefaults(), logger: logger}
}

// The IdP intermediate page offers several sign-in routes behind one button.
const continueButtonXPath = `//button[contains(., "Fortsæt med")]`

// Azure B2C marks rejected credentials with these elements; they are only
// meaningful when visible.
const loginErrorJS = `(() => {
	const el = document.querySelector(".error.pageLevel, .error.itemLevel, #passwordEntryMismatch");
	return !!el && el.offsetParent !== null && el.textContent.trim().length > 0;
})()`

// FetchDashboardText logs in through the identity provider, navigates to the
// consumption page, and polls the rendered text until the reading phrase
// appears. Every failure is classified as a *portal.Error. The browser
// context is fresh per invocation and torn down on all paths.
func (d *Driver) FetchDashboardText(ctx context.Context, creds Credentials) (string, error) {
	if !d.cfg.SkipPreflight {
		if err := d.preflight(); err != nil {
			return "", newError(KindNavigationFailed, fmt.Errorf("preflight probe: %w", err))
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(d.cfg.UserAgent),
	)
	// A fresh allocator per attempt: no cookie or session reuse across
	// cycles, so a stale upstream session can never poison a later attempt.
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	if err := d.openLogin(tabCtx); err != nil {
		return "", err
	}
	if err := d.authenticate(tabCtx, creds); err != nil {
		return "", err
	}
	return d.awaitReading(tabCtx)
}

// openLogin loads the portal's login entry point and hands off to the IdP.
func (d *Driver) openLogin(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavTimeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		network.Enable(),
		emulation.SetUserAgentOverride(d.cfg.UserAgent),
		chromedp.Navigate(d.cfg.LoginURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Click(continueButtonXPath, chromedp.BySearch),
	)
	if err != nil {
		return newError(KindNavigationFailed, fmt.Errorf("open login page: %w", err))
	}

	if err := d.waitLocationPrefix(ctx, d.cfg.IdPURLPrefix, d.cfg.LoginTimeout); err != nil {
		return newError(KindLoginTimeout, fmt.Errorf("identity provider redirect: %w", err))
	}
	d.logger.Debug("identity provider reached")
	return nil
}

// authenticate submits credentials on the IdP form and waits for the
// redirect back to the portal. The form is two fields on one page, but the
// password field renders after the email field, so each wait is explicit.
func (d *Driver) authenticate(ctx context.Context, creds Credentials) error {
	formCtx, cancel := context.WithTimeout(ctx, d.cfg.LoginTimeout)
	defer cancel()

	err := chromedp.Run(formCtx,
		chromedp.WaitVisible("#signInName", chromedp.ByID),
		chromedp.SendKeys("#signInName", creds.Email, chromedp.ByID),
		chromedp.WaitVisible("#password", chromedp.ByID),
		chromedp.SendKeys("#password", creds.Password, chromedp.ByID),
		chromedp.Click("#next", chromedp.ByID),
	)
	if err != nil {
		return newError(KindLoginTimeout, fmt.Errorf("submit credentials: %w", err))
	}

	// The provider either navigates back to the portal or re-renders the
	// form with an error banner; poll for whichever happens first.
	deadline := time.Now().Add(d.cfg.LoginTimeout)
	for {
		var (
			loc      string
			rejected bool
		)
		err := chromedp.Run(ctx,
			chromedp.Location(&loc),
			chromedp.Evaluate(loginErrorJS, &rejected),
		)
		if err != nil {
			return newError(KindNavigationFailed, fmt.Errorf("inspect login result: %w", err))
		}
		if strings.HasPrefix(loc, d.cfg.PortalURLPrefix) {
			d.logger.Debug("authenticated", zap.String("location", loc))
			return nil
		}
		if rejected {
			return newError(KindLoginRejected, errors.New("identity provider reported invalid credentials"))
		}
		if time.Now().After(deadline) {
			return newError(KindLoginTimeout, fmt.Errorf("no redirect back to portal within %s", d.cfg.LoginTimeout))
		}
		if err := sleep(ctx, d.cfg.RenderPoll); err != nil {
			return newError(KindLoginTimeout, err)
		}
	}
}

// awaitReading opens the consumption page and polls its text content until
// the reading phrase appears. The dashboard populates asynchronously with no
// completion event, so a bounded poll with a pattern predicate is the only
// reliable signal.
func (d *Driver) awaitReading(ctx context.Context) (string, error) {
	navCtx, cancel := context.WithTimeout(ctx, d.cfg.NavTimeout)
	err := chromedp.Run(navCtx,
		chromedp.Navigate(d.cfg.ConsumptionURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	cancel()
	if err != nil {
		return "", newError(KindNavigationFailed, fmt.Errorf("open consumption page: %w", err))
	}

	deadline := time.Now().Add(d.cfg.RenderTimeout)
	for {
		var text string
		if err := chromedp.Run(ctx, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
			return "", newError(KindNavigationFailed, fmt.Errorf("read page text: %w", err))
		}
		if meter.HasReading(text) {
			return text, nil
		}
		if time.Now().After(deadline) {
			return "", newError(KindRenderTimeout, fmt.Errorf("reading not rendered within %s", d.cfg.RenderTimeout))
		}
		if err := sleep(ctx, d.cfg.RenderPoll); err != nil {
			return "", newError(KindRenderTimeout, err)
		}
	}
}

// waitLocationPrefix polls the tab location until it starts with prefix or
// the budget elapses.
func (d *Driver) waitLocationPrefix(ctx context.Context, prefix string, budget time.Duration) error {
	deadline := time.Now().Add(budget)
	for {
		var loc string
		if err := chromedp.Run(ctx, chromedp.Location(&loc)); err != nil {
			return fmt.Errorf("read location: %w", err)
		}
		if strings.HasPrefix(loc, prefix) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("still at %q after %s", loc, budget)
		}
		if err := sleep(ctx, d.cfg.RenderPoll); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
