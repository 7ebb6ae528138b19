package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"authgate/internal/audit"
	"authgate/internal/audit/publisher"
	kafkasink "authgate/internal/audit/store/kafka"
	"authgate/internal/audit/store/memory"
	pgstore "authgate/internal/audit/store/postgres"
	authHandler "authgate/internal/auth/handler"
	authService "authgate/internal/auth/service"
	"authgate/internal/gate"
	"authgate/internal/hosted"
	"authgate/internal/identity"
	"authgate/internal/platform/config"
	"authgate/internal/platform/httpserver"
	"authgate/internal/platform/kafka"
	"authgate/internal/platform/logger"
	"authgate/internal/platform/metrics"
	"authgate/internal/platform/postgres"
	"authgate/internal/platform/redis"
	"authgate/internal/provider"
	"authgate/internal/session"
	"authgate/internal/session/revocation"
	httptransport "authgate/internal/transport/http"
	"authgate/pkg/backend"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("authgate stopped", "error", err)
		os.Exit(1)
	}
}

// cleanup collects shutdown hooks, run in reverse order.
type cleanup []func()

func (c *cleanup) add(f func()) { *c = append(*c, f) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var closers cleanup
	defer func() { closers.run() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	checks := map[string]httptransport.HealthCheck{}

	upstream := &http.Client{Timeout: cfg.Upstream.Timeout}
	be, err := backend.New(cfg.Upstream.BackendURL, backend.WithHTTPClient(upstream))
	if err != nil {
		return err
	}
	providers := provider.New(be, log,
		provider.WithTTL(cfg.Provider.TTL),
		provider.WithProbeTimeout(cfg.Provider.ProbeTimeout),
		provider.WithMetrics(m),
	)

	revocations, err := buildRevocations(ctx, cfg.Redis, checks, &closers)
	if err != nil {
		return err
	}
	codec, err := session.NewCodec([]byte(cfg.Session.Secret), cfg.Session.MaxAge)
	if err != nil {
		return err
	}
	store := session.NewStore(codec, log,
		session.WithSecureCookies(cfg.IsProduction()),
		session.WithRevocations(revocations),
		session.WithStoreMetrics(m),
	)

	auditStore, err := buildAuditStore(ctx, cfg.Audit, log, checks, &closers)
	if err != nil {
		return err
	}
	events := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithLogger(log),
		publisher.WithMetrics(m),
	)
	closers.add(events.Close)

	auth := authHandler.New(
		authService.New(be, log, authService.WithMetrics(m), authService.WithAuditPublisher(events)),
		store, log, m,
	)

	deps := httptransport.Dependencies{
		Logger:    log,
		Gatherer:  registry,
		Providers: providers,
		Auth:      auth,
	}
	var hostedSessions identity.HostedSessions
	if cfg.Hosted.Enabled() {
		hp, err := hosted.New(ctx, hosted.Config{
			Issuer:        cfg.Hosted.Issuer,
			ClientID:      cfg.Hosted.ClientID,
			ClientSecret:  cfg.Hosted.ClientSecret,
			RedirectURL:   cfg.Hosted.RedirectURL,
			Scopes:        cfg.Hosted.Scopes,
			CookieName:    cfg.Hosted.CookieName,
			SessionMaxAge: cfg.Session.MaxAge,
			Secure:        cfg.IsProduction(),
			Audit:         events,
		}, []byte(cfg.Session.Secret), log)
		if err != nil {
			return err
		}
		// Only assign when configured: a nil *hosted.Provider in an
		// interface is not a nil interface.
		hostedSessions = hp
		deps.Hosted = hp
	}

	deps.Identity = identity.New(providers, store, hostedSessions, log)
	deps.Gate = gate.New(providers, store, log,
		gate.WithSignInPath(cfg.Session.SignInPath),
		gate.WithPublicPaths(cfg.Session.PublicPaths),
		gate.WithMetrics(m),
	).Middleware
	if deps.AppURL, err = url.Parse(cfg.Upstream.AppURL); err != nil {
		return fmt.Errorf("parse app url: %w", err)
	}
	if deps.BackendURL, err = url.Parse(cfg.Upstream.BackendURL); err != nil {
		return fmt.Errorf("parse backend url: %w", err)
	}
	deps.Checks = checks

	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(deps))

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		providers.InvalidateOn(gctx, hup)
		return nil
	})
	g.Go(func() error {
		log.Info("starting authgate", "addr", cfg.Server.Addr, "env", cfg.Env, "backend", cfg.Upstream.BackendURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down authgate")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// buildRevocations uses Redis when configured, otherwise an in-process list
// that does not survive restarts.
func buildRevocations(ctx context.Context, cfg config.RedisConfig, checks map[string]httptransport.HealthCheck, closers *cleanup) (revocation.List, error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return revocation.NewInMemory(time.Now), nil
	}
	checks["redis"] = client.Health
	closers.add(func() { _ = client.Close() })
	return revocation.NewRedis(client.Client), nil
}

// buildAuditStore fans events out to every configured sink, falling back to
// memory when none is.
func buildAuditStore(ctx context.Context, cfg config.AuditConfig, log *slog.Logger, checks map[string]httptransport.HealthCheck, closers *cleanup) (audit.Store, error) {
	var sinks audit.Fanout

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if db != nil {
		closers.add(func() { _ = db.Close() })
		checks["postgres"] = db.PingContext
		pg := pgstore.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, pg)
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		return nil, err
	}
	if producer != nil {
		closers.add(producer.Close)
		checks["kafka"] = producer.Health
		if err := producer.EnsureTopic(ctx, cfg.KafkaTopic, 1, 1); err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.KafkaTopic, "error", err)
		}
		sinks = append(sinks, kafkasink.New(producer, cfg.KafkaTopic))
	}

	switch len(sinks) {
	case 0:
		log.Info("audit events kept in memory")
		return memory.NewInMemoryStore(), nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}
