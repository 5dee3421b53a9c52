// cmd/libradesk/serve.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"libradesk/internal/audit"
	"libradesk/internal/server"
	"libradesk/internal/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TracingConfig{
		Endpoint: a.cfg.OTLPEndpoint,
		Env:      a.cfg.Env,
		Version:  version,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			a.logger.Warn("tracer shutdown", "error", err)
		}
	}()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	svc, err := a.services(st)
	if err != nil {
		return err
	}

	var reconciler *audit.Reconciler
	if a.cfg.ReconcileSchedule != "" {
		reconciler, err = audit.NewReconciler(a.cfg.ReconcileSchedule, svc.circulation, svc.auditor, a.logger)
		if err != nil {
			return err
		}
		reconciler.Start()
	}

	router := server.NewRouter(server.Deps{
		DB:          st,
		Auth:        svc.auth,
		Catalog:     svc.catalog,
		Membership:  svc.membership,
		Circulation: svc.circulation,
	}, server.Options{
		RateLimit:          server.RateLimitConfig{RequestsPerSecond: a.cfg.RateLimitRPS, Burst: a.cfg.RateLimitBurst},
		CORSAllowedOrigins: a.cfg.CORSAllowedOrigins,
	}, a.logger)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http api listening", "addr", srv.Addr, "driver", st.Driver(), "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if reconciler != nil {
		reconciler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}
	return nil
}
