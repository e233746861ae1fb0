package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/layer-3/remitgate/adapters/events"
	"github.com/layer-3/remitgate/adapters/ledger"
	"github.com/layer-3/remitgate/adapters/sealer"
	"github.com/layer-3/remitgate/adapters/store"
	"github.com/layer-3/remitgate/adapters/tokenizer"
	"github.com/layer-3/remitgate/adapters/verifier"
	"github.com/layer-3/remitgate/config"
	"github.com/layer-3/remitgate/ports"
	"github.com/layer-3/remitgate/service"
	transport "github.com/layer-3/remitgate/transport/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			config.LoadDotenv()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger)
		},
	}
}

// backend holds the stores and message bus chosen by configuration
type backend struct {
	nonces     ports.NonceStore
	idem       ports.IdempotencyStore
	counter    ports.RateCounter
	tokens     ports.TokenStore
	publisher  message.Publisher
	subscriber message.Subscriber
	close      func() error
}

func newMemoryBackend(caches *service.CacheRegistry, sweeper *service.Sweeper, wmLogger watermill.LoggerAdapter) backend {
	nonces := store.NewMemoryNonceStore()
	idem := store.NewMemoryIdempotencyStore()
	counter := store.NewMemoryRateCounter()
	tokens := store.NewMemoryTokenStore()

	caches.Register("nonces", nonces)
	caches.Register("idempotency", idem)
	caches.Register("ratelimit", counter)
	caches.Register("invalidated_tokens", tokens)
	sweeper.Add("nonces", nonces)
	sweeper.Add("idempotency", idem)
	sweeper.Add("ratelimit", counter)
	sweeper.Add("invalidated_tokens", tokens)

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wmLogger)
	return backend{
		nonces:     nonces,
		idem:       idem,
		counter:    counter,
		tokens:     tokens,
		publisher:  pubSub,
		subscriber: pubSub,
		close:      pubSub.Close,
	}
}

func newRedisBackend(ctx context.Context, redisURL string, wmLogger watermill.LoggerAdapter) (backend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return backend{}, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return backend{}, fmt.Errorf("failed to reach Redis: %w", err)
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, wmLogger)
	if err != nil {
		_ = client.Close()
		return backend{}, fmt.Errorf("failed to create Redis publisher: %w", err)
	}
	// no consumer group: every instance sees every audit and logout event
	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{Client: client}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		_ = client.Close()
		return backend{}, fmt.Errorf("failed to create Redis subscriber: %w", err)
	}

	return backend{
		nonces:     store.NewRedisNonceStore(client),
		idem:       store.NewRedisIdempotencyStore(client),
		counter:    store.NewRedisRateCounter(client),
		tokens:     store.NewRedisTokenStore(client),
		publisher:  publisher,
		subscriber: subscriber,
		close: func() error {
			return errors.Join(subscriber.Close(), publisher.Close(), client.Close())
		},
	}, nil
}

func loadAccessKey(path string, logger *slog.Logger) (*ecdsa.PrivateKey, error) {
	if path == "" {
		logger.Warn("ACCESS_TOKEN_KEY_FILE not set; access tokens will not survive a restart")
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read access token key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse access token key: %w", err)
	}
	return key, nil
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	codec, err := sealer.NewJOSESealer(cfg.SessionSecret)
	if err != nil {
		return err
	}
	accessKey, err := loadAccessKey(cfg.AccessTokenKeyFile, logger)
	if err != nil {
		return err
	}

	auditLog := service.NewAuditLog(cfg.AuditCapacity)
	caches := service.NewCacheRegistry()
	caches.Register("audit", auditLog)
	sweeper := service.NewSweeper(cfg.SweepInterval, logger)
	wmLogger := watermill.NewSlogLogger(logger)

	var be backend
	if cfg.RedisURL != "" {
		if be, err = newRedisBackend(ctx, cfg.RedisURL, wmLogger); err != nil {
			return err
		}
		logger.Info("using Redis stores")
	} else {
		be = newMemoryBackend(caches, sweeper, wmLogger)
		logger.Warn("using in-memory stores; limits and nonces are not shared between instances")
	}
	defer func() {
		if err := be.close(); err != nil {
			logger.Error("failed to close backend", "error", err)
		}
	}()

	eventPub := events.NewWatermillPublisher(be.publisher, logger)
	tasks := service.NewTaskGroup(logger)
	sigVerifier := verifier.NewDefault()
	accessTokens := tokenizer.NewJWTTokenizer(accessKey)

	sessions := service.NewSessionManager(codec, service.SessionConfig{
		MaxAge:          cfg.SessionMaxAge,
		RefreshEnabled:  cfg.SessionRefreshEnabled,
		RefreshInterval: cfg.SessionRefreshInterval,
		Secure:          cfg.Production(),
	}, eventPub, logger).WithTokenStore(be.tokens)

	authService := service.NewAuthService(service.AuthDeps{
		Nonces:    be.nonces,
		Verifier:  sigVerifier,
		Sessions:  sessions,
		Tokenizer: accessTokens,
		EventPub:  eventPub,
		Audit:     eventPub,
		Tasks:     tasks,
		Logger:    logger,
		NonceTTL:  cfg.NonceTTL,
	})

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := transport.SetupRouter(transport.RouterConfig{
		Auth:      authService,
		Sessions:  sessions,
		Verifier:  sigVerifier,
		Transfers: service.NewTransferService(ledger.NewMemoryLedger()),
		Limiter: service.NewRateLimiter(be.counter, service.RateLimits{
			Window:  cfg.RateLimitWindow,
			Auth:    cfg.RateLimitAuth,
			Write:   cfg.RateLimitWrite,
			General: cfg.RateLimitGeneral,
		}, eventPub, logger),
		Idempotency:    service.NewIdempotencyGuard(be.idem, cfg.IdempotencyTTL, eventPub, logger),
		Audit:          auditLog,
		Caches:         caches,
		Metrics:        transport.NewMetrics(),
		Logger:         logger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Production:     cfg.Production(),
		E2EToken:       cfg.E2EBypassToken,
		Admins:         cfg.AdminIdentities,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return events.ConsumeAudit(gctx, be.subscriber, auditLog, logger)
	})
	g.Go(func() error {
		return events.ConsumeLogout(gctx, be.subscriber, sessions, logger)
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		tasks.Close()
		if waitErr := tasks.Wait(shutdownCtx); waitErr != nil {
			logger.Warn("background tasks still running at shutdown", "error", waitErr)
		}
		return err
	})

	return g.Wait()
}
