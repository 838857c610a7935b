package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"

	"github.com/mohamedFouadgebil/socialMedia/internal/config"
	"github.com/mohamedFouadgebil/socialMedia/internal/db"
	healthhandler "github.com/mohamedFouadgebil/socialMedia/internal/health/handler"
	identityhandler "github.com/mohamedFouadgebil/socialMedia/internal/identity/handler"
	"github.com/mohamedFouadgebil/socialMedia/internal/identity/service"
	"github.com/mohamedFouadgebil/socialMedia/internal/logger"
	"github.com/mohamedFouadgebil/socialMedia/internal/mailer"
	"github.com/mohamedFouadgebil/socialMedia/internal/obs"
	"github.com/mohamedFouadgebil/socialMedia/internal/policy/engine"
	"github.com/mohamedFouadgebil/socialMedia/internal/security"
	"github.com/mohamedFouadgebil/socialMedia/internal/server"
	"github.com/mohamedFouadgebil/socialMedia/internal/server/interceptors"
	sessionrepo "github.com/mohamedFouadgebil/socialMedia/internal/session/repository"
	"github.com/mohamedFouadgebil/socialMedia/internal/telemetry"
	telemetryotel "github.com/mohamedFouadgebil/socialMedia/internal/telemetry/otel"
	userrepo "github.com/mohamedFouadgebil/socialMedia/internal/user/repository"
)

const (
	serviceName         = "social-media-api"
	healthWatchInterval = 15 * time.Second
	limiterSweepEvery   = time.Minute
	shutdownTimeout     = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	events := telemetryotel.NewEventEmitter(providers.LoggerProvider)
	obs.Init()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer conn.Close()

	revocationRepo, closeRevocations, err := openRevocationRepo(cfg, conn)
	if err != nil {
		return err
	}
	defer closeRevocations()

	authority, err := security.NewSignatureAuthority(map[security.Level]security.Secrets{
		security.LevelUser: {
			Access:  []byte(cfg.AccessUserTokenSecret),
			Refresh: []byte(cfg.RefreshUserTokenSecret),
		},
		security.LevelAdmin: {
			Access:  []byte(cfg.AccessAdminTokenSecret),
			Refresh: []byte(cfg.RefreshAdminTokenSecret),
		},
	})
	if err != nil {
		return fmt.Errorf("signature authority: %w", err)
	}

	var queue mailer.Queue
	if kq := mailer.NewKafkaQueue(cfg.KafkaBrokersList(), cfg.EmailKafkaTopic); kq != nil {
		defer kq.Close()
		queue = kq
		log.Info("confirmation emails published to kafka", zap.String("topic", cfg.EmailKafkaTopic))
	} else {
		queue = mailer.NewLogQueue(log, cfg.Env != "production")
		log.Warn("KAFKA_BROKERS not set; confirmation emails are only logged")
	}

	timeout := cfg.StoreCallTimeout()
	users := userrepo.NewPostgresRepository(conn)
	hasher := security.NewHasher(cfg.BcryptCost)
	tokens := security.NewTokenProvider(authority, cfg.JWTIssuer, cfg.AccessTTL(), cfg.RefreshTTL())
	revocations := service.NewRevocationStore(revocationRepo, timeout)
	verifier := service.NewVerifier(tokens, users, revocations, timeout)
	confirmations := service.NewConfirmationFlow(users, hasher, queue, cfg.OTPLength, timeout, log).
		WithMaxAttempts(cfg.ConfirmMaxAttempts)
	accounts := service.NewAccountService(users, hasher, service.NewIssuer(tokens), confirmations, events, timeout, log)
	invalidation := service.NewInvalidationPolicy(revocations, users, cfg.RefreshTTL(), timeout)

	authorizer, err := engine.NewRoleAuthorizer(ctx, engine.DefaultRolePolicy)
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	auth := interceptors.NewAuthenticator(verifier, authorizer, identityhandler.WriteError, events, log)
	checker := healthhandler.NewChecker(conn, authorizer, log)
	prefixes, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	proxies := server.TrustedProxies(prefixes)
	limiter := server.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, proxies)

	httpSrv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewHTTPHandler(server.HTTPDeps{
			API:            identityhandler.NewHandler(accounts, confirmations, invalidation, auth, events, log),
			Health:         checker,
			RateLimiter:    limiter,
			TrustedProxies: proxies,
			Logger:         log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthSrv := health.NewServer()
	grpcSrv := server.NewGRPCServer(log)
	server.RegisterServices(grpcSrv, server.Deps{Verifier: verifier, Health: healthSrv, Logger: log})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	bgCtx, cancelBackground := context.WithCancel(ctx)
	defer cancelBackground()
	go checker.Watch(bgCtx, healthSrv, healthWatchInterval, server.ServiceNames...)
	go revocations.RunJanitor(bgCtx, cfg.PurgeInterval(), log)
	go limiter.Run(bgCtx, limiterSweepEvery)

	errCh := make(chan error, 2)
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down servers...")
	case serveErr = <-errCh:
		log.Error("server failed; shutting down", zap.Error(serveErr))
	}

	cancelBackground()
	healthSrv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	log.Info("servers stopped")

	// Let in-flight async event emits finish before the log exporter goes away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	otelCtx, otelCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer otelCancel()
	_ = providers.Shutdown(otelCtx)
	return serveErr
}

// openRevocationRepo returns the revocation backend selected by REVOCATION_BACKEND and a close function.
func openRevocationRepo(cfg *config.Config, conn *sqlx.DB) (sessionrepo.Repository, func(), error) {
	switch cfg.RevocationBackend {
	case config.RevocationBackendPostgres:
		return sessionrepo.NewPostgresRepository(conn), func() {}, nil
	case config.RevocationBackendRedis:
		client, err := sessionrepo.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		return sessionrepo.NewRedisRepository(client), func() { _ = client.Close() }, nil
	case config.RevocationBackendMemory:
		return sessionrepo.NewMemoryRepository(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown revocation backend %q", cfg.RevocationBackend)
}
