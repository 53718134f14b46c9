package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/atmx/stocker/internal/alert"
	"github.com/atmx/stocker/internal/command"
	"github.com/atmx/stocker/internal/company"
	"github.com/atmx/stocker/internal/config"
	"github.com/atmx/stocker/internal/gateway"
	"github.com/atmx/stocker/internal/metrics"
	"github.com/atmx/stocker/internal/portfolio"
	"github.com/atmx/stocker/internal/quote"
	"github.com/atmx/stocker/internal/ticker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the interaction endpoint, notification gateway and alert scanner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// --- Initialize stores ---
	st, closeStore, err := openLedgerStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	names, closeCache, err := openNameCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	// --- Providers ---
	yahoo := quote.NewYahoo(logger)
	quotes := quote.NewBounded(yahoo, cfg.QuoteTimeout, logger)
	directory := company.NewDirectory(quote.NewBoundedInfo(yahoo, cfg.QuoteTimeout), names, logger)

	// --- Domain ---
	norm := ticker.NewNormalizer(cfg.TickerSuffix)
	ledger := portfolio.NewLedger(st, norm, logger)
	book := alert.NewBook(norm, logger)

	// Schema errors are retried on first use.
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema failed, will retry on first ledger command", "err", err)
	}

	// --- Notification gateway ---
	hub := gateway.NewHub(logger)
	defer hub.Close()

	// --- Alert scanner ---
	scanner := alert.NewScanner(book, quotes, hub, cfg.ScanInterval, logger)
	if err := scanner.Start(); err != nil {
		return err
	}
	defer scanner.Stop()

	// --- Commands ---
	svc := command.NewService(ledger, book, quotes, directory, hub, norm, logger)
	interactions := command.NewHandler(svc, hub, cfg.AckDeadline, logger)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"stocker"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for channel and direct notifications.
		r.Get("/gateway", hub.HandleWS)

		r.With(middleware.Timeout(30*time.Second)).Post("/interactions", interactions.HandleInteraction)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stocker listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down stocker...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	return nil
}
