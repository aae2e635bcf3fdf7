// Command server runs the social backend HTTP API.
//
//	@title						Social Backend API
//	@version					1.0
//	@description				Profiles, posts, follows, likes, comments, direct messages, notifications and a realtime change feed.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/auth"
	"github.com/tbourn/go-social-backend/internal/config"
	httpapi "github.com/tbourn/go-social-backend/internal/http"
	"github.com/tbourn/go-social-backend/internal/observability"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/retry"
	"github.com/tbourn/go-social-backend/internal/storage"
	"github.com/tbourn/go-social-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = ""

const purgeInterval = 10 * time.Minute

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not found, using process environment")
	}

	cfg := config.MustLoad()
	log.Logger = sysutil.NewLogger(os.Stderr, cfg.LogPretty)
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version, "dev")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	policy := retry.Policy{
		Attempts:     cfg.Retry.Attempts,
		InitialDelay: cfg.Retry.InitialDelay,
		Multiplier:   cfg.Retry.Multiplier,
		MaxDelay:     30 * time.Second,
		Jitter:       0.2,
	}

	db, err := retry.Value(ctx, policy, "db.open", func(context.Context) (*gorm.DB, error) {
		return repo.Open(cfg.DB.Driver, cfg.DB.Path, cfg.DB.URL)
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("database open failed")
	}
	if cfg.OTEL.Enabled {
		if err := repo.Instrument(db); err != nil {
			log.Fatal().Err(err).Msg("gorm tracing setup failed")
		}
	}
	if sysutil.IsTruthy(os.Getenv("SKIP_MIGRATIONS")) {
		log.Info().Msg("schema migration skipped")
	} else if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("object store setup failed")
	}

	hub := realtime.NewHub()
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	if cfg.Realtime.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Realtime.RedisAddr,
			Password: cfg.Realtime.RedisPassword,
			DB:       cfg.Realtime.RedisDB,
		})
		defer rdb.Close()
		bridge := realtime.NewBridge(rdb, hub, cfg.Realtime.RedisChannel, policy)
		go func() {
			if err := bridge.Run(bgCtx); err != nil {
				log.Error().Err(err).Msg("realtime redis bridge stopped")
			}
		}()
	}

	go purgeExpired(bgCtx, db)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Infra{
		Store:  storage.Retrying{Store: store, Policy: policy},
		Hub:    hub,
		Tokens: auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", appVersion).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// close sockets first so their handlers return before the server waits
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("realtime hub shutdown")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	cancelBg()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracer shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server stopped")
}

// newStore builds the object store selected by cfg.Driver.
func newStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	if cfg.Driver == "s3" {
		return storage.NewS3Store(ctx, cfg.Region, cfg.Bucket, cfg.Endpoint, cfg.PublicBaseURL)
	}
	return storage.NewLocalStore(cfg.LocalDir, cfg.PublicBaseURL)
}

// purgeExpired drops expired refresh tokens and idempotency records until
// ctx is done.
func purgeExpired(ctx context.Context, db *gorm.DB) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n, err := repo.DeleteExpiredRefreshTokens(ctx, db, now); err != nil {
				log.Warn().Err(err).Msg("purge refresh tokens")
			} else if n > 0 {
				log.Debug().Int64("rows", n).Msg("purged refresh tokens")
			}
			if n, err := repo.PurgeExpiredIdempotency(ctx, db, now); err != nil {
				log.Warn().Err(err).Msg("purge idempotency records")
			} else if n > 0 {
				log.Debug().Int64("rows", n).Msg("purged idempotency records")
			}
		}
	}
}
