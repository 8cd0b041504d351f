package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"openbadges/internal/audit"
	"openbadges/internal/authz"
	"openbadges/internal/badges/handler"
	badgemetrics "openbadges/internal/badges/metrics"
	"openbadges/internal/badges/service"
	"openbadges/internal/platform/config"
	"openbadges/internal/platform/httpserver"
	"openbadges/internal/platform/logger"
	"openbadges/internal/platform/metrics"
	"openbadges/internal/ratelimit"
	"openbadges/pkg/derivation"
	"openbadges/pkg/domain"
	"openbadges/pkg/platform/middleware/admin"
	"openbadges/pkg/platform/middleware/metadata"
	"openbadges/pkg/platform/middleware/request"
	"openbadges/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	programID, err := domain.ParseAddress(cfg.Derivation.ProgramID)
	if err != nil {
		return err
	}

	store, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	sink, err := openAuditSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sink.close()

	appMetrics := metrics.New()
	badgeMetrics := badgemetrics.New(appMetrics.Registry)
	queue := audit.NewQueue(cfg.Audit.QueueSize, log, audit.WithFailureCounter(badgeMetrics))
	worker := audit.NewWorker(sink.publisher, queue)

	limiterStore, closeLimiter, err := openRateLimitStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	limiter := ratelimit.New(limiterStore, cfg.RateLimit.Requests, cfg.RateLimit.Window, log,
		ratelimit.WithDisabled(!cfg.RateLimit.Enabled),
		ratelimit.WithMetrics(appMetrics.Registry),
	)
	svc := service.New(store.ledger, derivation.New(programID),
		service.WithLogger(log),
		service.WithAuditPublisher(queue),
		service.WithMetrics(badgeMetrics),
		service.WithBatchConcurrency(cfg.Ledger.BatchConcurrency),
	)

	verifier := authz.NewJWTVerifier(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	badgeHandler := handler.New(svc, authz.NewAuthorizer(verifier), discoveryConfig(cfg.Discovery), log)

	clientMeta, err := metadata.NewResolver(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("server.trusted_proxies: %w", err)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(request.RequestID)
	r.Use(clientMeta.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log, appMetrics))
	r.Use(limiter.Handler)
	r.Use(chimiddleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.With(admin.RequireAdminToken(cfg.Server.MetricsToken, log)).Handle("/metrics", appMetrics.Handler())
	badgeHandler.Register(r)

	srv := httpserver.New(cfg.Server.Addr, r, cfg.Server.ReadHeaderTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := worker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info("starting openbadges",
			"addr", cfg.Server.Addr,
			"ledger", cfg.Ledger.Backend,
			"program_id", programID.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func discoveryConfig(c config.DiscoveryConfig) handler.DiscoveryConfig {
	return handler.DiscoveryConfig{
		Title:            c.Title,
		Version:          c.Version,
		Name:             c.Name,
		ServerURL:        c.ServerURL,
		TermsOfService:   c.TermsOfService,
		PrivacyPolicyURL: c.PrivacyPolicyURL,
		ImageURL:         c.ImageURL,
		RegistrationURL:  c.RegistrationURL,
		AuthorizationURL: c.AuthorizationURL,
		TokenURL:         c.TokenURL,
		RefreshURL:       c.RefreshURL,
	}
}
