package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/punchamoorthee/atomicbank/internal/config"
	"github.com/punchamoorthee/atomicbank/internal/dashboard"
	"github.com/punchamoorthee/atomicbank/internal/ledger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	// Logs go to stderr so they do not interleave with the rendered screens.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	client := ledger.NewClient(cfg.LedgerBaseURL,
		ledger.WithTimeout(cfg.RequestTimeout),
		ledger.WithMetrics(ledger.NewMetrics(reg)),
		ledger.WithLogger(logger),
	)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	console := dashboard.NewConsole(os.Stdout)
	dash := dashboard.New(dashboard.Config{
		Registry:      cfg.Registry,
		Ledger:        client,
		Password:      cfg.SharedPassword,
		DepositAmount: cfg.Deposit,
		Notifier:      dashboard.PrintNotifier(console),
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("dashboard ready", "ledger", cfg.LedgerBaseURL)
	if err := dashboard.NewShell(dash, console).Run(ctx, os.Stdin); err != nil {
		logger.Error("input failed", "error", err)
		os.Exit(1)
	}
	dash.Logout()
}
