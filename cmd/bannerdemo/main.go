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

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"assent/internal/bannerdemo"
	"assent/internal/platform/config"
	"assent/internal/platform/httpserver"
	"assent/internal/platform/logger"
	"assent/pkg/consent"
	"assent/pkg/platform/audit/publisher"
	auditstore "assent/pkg/platform/audit/store"
	"assent/pkg/platform/metrics"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Consent behavior lives in the SDK packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	m := metrics.New()

	trail, err := newAuditTrail(cfg, log, m)
	if err != nil {
		log.Error("open audit trail", "error", err)
		os.Exit(1)
	}

	opts := cfg.ConsentOptions()
	opts.Logger = log
	opts.Metrics = m
	opts.Audit = trail
	client, err := consent.New(opts)
	if err != nil {
		log.Error("configure consent client", "error", err)
		os.Exit(1)
	}

	handler := bannerdemo.New(client, trail, log, cfg.AdminToken)
	router := chi.NewRouter()
	handler.Register(router)

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("bannerdemo listening",
			"addr", cfg.Addr,
			"driver", cfg.StorageDriver,
			"audit", cfg.AuditConfig().ResolvedDriver(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if cerr := client.Close(); cerr != nil {
		log.Warn("close consent client", "error", cerr)
	}
	if terr := trail.Close(); terr != nil {
		log.Warn("close audit trail", "error", terr)
	}

	if err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("bannerdemo stopped")
}

// newAuditTrail builds the audit publisher over the configured sink. The
// admin audit view works only with queryable sinks (memory, jsonl,
// postgres); a kafka trail serves writes and reports queries unsupported.
func newAuditTrail(cfg config.Config, log *slog.Logger, m *metrics.Metrics) (*publisher.Publisher, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := auditstore.Open(ctx, cfg.AuditConfig())
	if err != nil {
		return nil, err
	}
	return publisher.NewPublisher(store,
		publisher.WithAsyncBuffer(256),
		publisher.WithLogger(log),
		publisher.WithMetrics(m),
		publisher.WithOwnedStore(),
	), nil
}
