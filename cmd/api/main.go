package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"digicop-backend/internal/config"
	"digicop-backend/internal/database"
	"digicop-backend/internal/logger"
	"digicop-backend/internal/notify"
	"digicop-backend/internal/ratelimit"
	"digicop-backend/internal/server"
	"digicop-backend/internal/storage"
	"digicop-backend/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.OnGCP)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	log.Infof("config: %s", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.With("err", err).Warn("failed to flush traces")
		}
	}()

	db, err := database.Init(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		return err
	}

	deps := server.Deps{
		Config:    cfg,
		Log:       log,
		DB:        db,
		Store:     store,
		Notifiers: notify.FromConfig(cfg),
	}

	if cfg.RateLimit.RedisAddr != "" {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
		})
		deps.Limiter = ratelimit.NewRedisLimiter(deps.Redis, cfg.RateLimit.Max, cfg.RateLimit.Window)
	} else {
		deps.Limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
	}

	for _, n := range deps.Notifiers {
		log.Infof("contact notifications enabled: %s", n.Name())
	}

	return server.New(deps).Run(ctx)
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Backend {
	case config.StorageS3:
		s3, err := storage.NewS3Store(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 store: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare bucket %q: %w", cfg.S3.Bucket, err)
		}
		return s3, nil
	default:
		local, err := storage.NewLocalStore(cfg.UploadDir, cfg.MetaDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create upload directories: %w", err)
		}
		return local, nil
	}
}
