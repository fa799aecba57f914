package portal

import (
	"fmt"

	"github.com/gocolly/colly/v2"
)

// preflight issues a plain HTTP GET against the login entry point before a
// browser is launched. Launching Chrome is expensive; an unreachable portal
// should fail fast and be classified as a navigation failure.
func (d *Driver) preflight() error {
	c := colly.NewCollector(colly.UserAgent(d.cfg.UserAgent))
	c.IgnoreRobotsTxt = true
	c.SetRequestTimeout(d.cfg.NavTimeout)

	var probeErr error
	c.OnError(func(_ *colly.Response, err error) {
		probeErr = err
	})

	if err := c.Visit(d.cfg.LoginURL); err != nil {
		return fmt.Errorf("visit %s: %w", d.cfg.LoginURL, err)
	}
	c.Wait()
	if probeErr != nil {
		return fmt.Errorf("probe %s: %w", d.cfg.LoginURL, probeErr)
	}
	return nil
}
