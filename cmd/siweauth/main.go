package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/siweauth/adapters/events"
	"github.com/layer-3/siweauth/adapters/registry"
	"github.com/layer-3/siweauth/adapters/store"
	"github.com/layer-3/siweauth/adapters/tokenizer"
	"github.com/layer-3/siweauth/internal/platform/config"
	"github.com/layer-3/siweauth/internal/platform/logger"
	"github.com/layer-3/siweauth/internal/platform/metrics"
	"github.com/layer-3/siweauth/ports"
	"github.com/layer-3/siweauth/service"
	httptransport "github.com/layer-3/siweauth/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	issuer          = "siweauth"
	usersTable      = "users"
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("siweauth stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, zl *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	checks := map[string]httptransport.HealthCheck{}
	var sweepers []store.Sweeper

	// Nonces and sessions
	var (
		nonces      ports.NonceStore
		sessions    ports.SessionStore
		redisClient *redis.Client
	)
	if cfg.StoreBackend == config.BackendRedis || cfg.EventsEnabled {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	storeOpts := []store.Option{store.WithTimeout(cfg.StoreTimeout), store.WithDuration(m.StoreDuration)}
	switch cfg.StoreBackend {
	case config.BackendRedis:
		nonces = store.NewRedisNonceStore(redisClient, cfg.NonceTTL, storeOpts...)
		sessions = store.NewRedisSessionStore(redisClient, storeOpts...)
	default:
		memNonces := store.NewMemoryNonceStore(cfg.NonceTTL)
		memSessions := store.NewMemorySessionStore()
		nonces, sessions = memNonces, memSessions
		sweepers = append(sweepers, memNonces, memSessions)
	}

	// Users
	var users ports.UserStore
	if cfg.DatabaseURL != "" {
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := store.NewPostgresUserStore(db, usersTable, storeOpts...)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		users = pg
		checks["postgres"] = pingDB(db)
	} else {
		users = store.NewMemoryUserStore()
	}

	signKey, err := loadSigningKey(cfg.JWTSigningKey, zl)
	if err != nil {
		return err
	}

	sessionOpts := []service.SessionOption{
		service.WithSessionTTL(cfg.SessionTTL),
		service.WithExpiryPolicy(service.ExpiryPolicy(cfg.SessionPolicy), cfg.MaxLifetime),
	}
	if cfg.RegistryRequired {
		registryReader, client, err := registry.Dial(ctx, cfg.RegistryRPCURL, cfg.RegistryAddress, cfg.StoreTimeout)
		if err != nil {
			return err
		}
		defer client.Close()
		sessionOpts = append(sessionOpts, service.WithRegistry(registryReader))
	}
	sessionManager := service.NewSessionManager(sessions, users, tokenizer.NewJWTTokenizer(signKey, issuer), sessionOpts...)

	var eventPub ports.EventPublisher = events.NopPublisher{}
	if cfg.EventsEnabled {
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			return fmt.Errorf("create event publisher: %w", err)
		}
		defer publisher.Close()
		eventPub = events.NewWatermillPublisher(publisher)
	}

	authService := service.NewAuthService(nonces, sessionManager, eventPub,
		service.MessageConfig{
			Domain:          cfg.Domain,
			URI:             cfg.URI,
			Statement:       cfg.Statement,
			IncludeIssuedAt: cfg.IncludeIssuedAt,
			ChainIDs:        cfg.ChainIDs,
		},
		service.WithLogger(zl),
		service.WithMetrics(m),
	)

	router := httptransport.SetupRouter(authService, httptransport.RouterConfig{
		CookieName:   cfg.CookieName,
		CookieSecure: cfg.CookieSecure,
		Logger:       zl,
		Gatherer:     reg,
		HealthChecks: checks,
	})
	server := &http.Server{
		Addr: cfg.Addr,
		Handler: cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
		}).Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("listening",
			zap.String("addr", cfg.Addr),
			zap.String("domain", cfg.Domain),
			zap.String("store", cfg.StoreBackend),
			zap.String("session_policy", string(cfg.SessionPolicy)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if len(sweepers) > 0 {
		g.Go(func() error {
			return store.RunSweeper(ctx, cfg.SweepInterval, zl, sweepers...)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		zl.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// loadSigningKey parses a PEM EC key or generates one. A generated key
// invalidates every session on restart.
func loadSigningKey(pem string, zl *zap.Logger) (*ecdsa.PrivateKey, error) {
	if pem != "" {
		key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse JWT_SIGNING_KEY: %w", err)
		}
		return key, nil
	}
	zl.Warn("JWT_SIGNING_KEY not set, generating an ephemeral key")
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

func pingDB(db *sql.DB) httptransport.HealthCheck {
	return func(ctx context.Context) error { return db.PingContext(ctx) }
}
