package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	entitlegin "github.com/PaulFidika/entitlekit/adapters/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the entitlement API and run the expiry sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	d, err := buildDeps(ctx, true)
	if err != nil {
		return err
	}
	defer d.close()
	log := d.log

	sweeper := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := sweeper.AddFunc(d.cfg.SweepSchedule, func() {
		sctx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := d.svc.SweepExpired(sctx); err != nil {
			log.WithError(err).Error("expiry sweep failed")
		}
	}); err != nil {
		return err
	}
	sweeper.Start()
	defer func() { <-sweeper.Stop().Done() }()

	if log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := entitlegin.NewEngine(entitlegin.Options{
		Service:        d.svc,
		Limiter:        d.limiter,
		Logger:         log,
		RequestTimeout: d.cfg.RequestTimeout,
		Metrics:        promhttp.Handler(),
	})
	srv := &http.Server{
		Addr:              d.cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", d.cfg.HTTPAddr).Info("entitlementd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
