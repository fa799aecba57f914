// Package main wires together the companion service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/minvand/companion/internal/api"
	"github.com/minvand/companion/internal/clock/system"
	"github.com/minvand/companion/internal/config"
	"github.com/minvand/companion/internal/logging"
	"github.com/minvand/companion/internal/metrics"
	"github.com/minvand/companion/internal/portal"
	"github.com/minvand/companion/internal/scraper"
	"github.com/minvand/companion/internal/snapshot"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	clk := system.New()
	store := snapshot.NewStore(snapshot.NotStarted(clk.Now()))

	driver := portal.NewDriver(portal.Config{
		LoginURL:        cfg.Portal.LoginURL,
		ConsumptionURL:  cfg.Portal.ConsumptionURL,
		IdPURLPrefix:    cfg.Portal.IdPURLPrefix,
		PortalURLPrefix: cfg.Portal.PortalURLPrefix,
		UserAgent:       cfg.Browser.UserAgent,
		NavTimeout:      cfg.Browser.NavTimeout(),
		LoginTimeout:    cfg.Browser.LoginTimeout(),
		RenderTimeout:   cfg.Browser.RenderTimeout(),
		RenderPoll:      cfg.Browser.RenderPoll(),
		SkipPreflight:   cfg.Browser.SkipPreflight,
	}, logger.Named("portal"))

	cycle := scraper.NewCycle(driver, portal.Credentials{
		Email:    cfg.Portal.Email,
		Password: cfg.Portal.Password,
	}, clk, logger.Named("cycle"))

	sched := scraper.NewScheduler(cycle, store, scraper.PollConfig{
		Idle:       time.Duration(cfg.Poll.IdleSeconds) * time.Second,
		ProbeAfter: time.Duration(cfg.Poll.ProbeAfterMinutes) * time.Minute,
		Probe:      time.Duration(cfg.Poll.ProbeSeconds) * time.Second,
		ProbeMax:   time.Duration(cfg.Poll.ProbeMaxMinutes) * time.Minute,
		Min:        time.Duration(cfg.Poll.MinSeconds) * time.Second,
		Jitter:     time.Duration(cfg.Poll.JitterSeconds) * time.Second,
	}, clk, logger.Named("scheduler"))

	go sched.Run(ctx)

	server := api.NewServer(store, logger.Named("api"))
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()
	logger.Info("companion started", zap.Int("port", cfg.Server.Port))

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}
}
