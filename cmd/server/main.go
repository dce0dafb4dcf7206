package main

import (
	"context"
	"crypto/rand"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"meeting-scheduler/internal/app"
	"meeting-scheduler/internal/config"
	"meeting-scheduler/internal/notify"
	"meeting-scheduler/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := server.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := app.OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer pool.Close()

	store := app.NewPGStore(pool)
	if cfg.MigrateOnStart {
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal("failed to apply schema", zap.Error(err))
		}
	}

	events := notify.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer events.Close()

	appInstance := &app.App{
		Store:    store,
		Events:   events,
		Logger:   logger,
		StateKey: stateKey(cfg.Auth.JWTSecret),
	}
	if cfg.GoogleEnabled() {
		google := app.NewGoogleCalendar(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL, cfg.PublicBaseURL, store)
		appInstance.Google = google
		appInstance.Calendar = google
	} else {
		logger.Info("google calendar sync disabled")
	}

	limiter, closeLimiter := publicLimiter(cfg, logger)
	defer closeLimiter()

	router := server.NewRouter(logger, cfg.LogLevel == "debug")
	appInstance.Register(router,
		app.AuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.StaticTokens),
		app.RateLimitMiddleware(limiter, logger),
	)

	if err := server.Run(ctx, cfg.Addr(), router, logger); err != nil {
		logger.Error("http server error", zap.Error(err))
	}
}

// stateKey signs OAuth2 state. Without a configured secret a random key is
// used, so pending connect flows do not survive a restart.
func stateKey(secret string) []byte {
	if secret != "" {
		return app.StateKey([]byte(secret))
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("state key: %v", err)
	}
	return key
}

func publicLimiter(cfg *config.Config, logger *zap.Logger) (app.Limiter, func()) {
	if cfg.RateLimit.RedisURL == "" {
		return app.NewMemoryLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst), func() {}
	}
	opts, err := redis.ParseURL(cfg.RateLimit.RedisURL)
	if err != nil {
		logger.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	rdb := redis.NewClient(opts)

	perMinute := int(cfg.RateLimit.RPS * 60)
	if perMinute < cfg.RateLimit.Burst {
		perMinute = cfg.RateLimit.Burst
	}
	logger.Info("public rate limit backed by redis", zap.Int("per_minute", perMinute))
	return app.NewRedisLimiter(rdb, perMinute, time.Minute, "sched:rl"), func() { _ = rdb.Close() }
}
