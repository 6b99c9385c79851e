package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/partsledger/internal/inventory"
	"github.com/odyssey-erp/partsledger/internal/observability"
	"github.com/odyssey-erp/partsledger/internal/platform/cache"
	"github.com/odyssey-erp/partsledger/internal/platform/db"
	"github.com/odyssey-erp/partsledger/internal/shared"
	"github.com/odyssey-erp/partsledger/internal/units"
	"github.com/odyssey-erp/partsledger/jobs"
)

// Runtime holds the connections and services shared by the API and worker processes.
type Runtime struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Tokens    *shared.ActionTokenStore
	JobClient *jobs.Client
	Metrics   *observability.Metrics
	Inventory *inventory.Service

	logger *slog.Logger
}

// RedisOpts returns the asynq connection options for the configured Redis.
func (c *Config) RedisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Bootstrap connects to Postgres and Redis and wires the inventory service.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger) (*Runtime, error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	jobClient, err := jobs.NewClient(cfg.RedisOpts())
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init job client: %w", err)
	}

	metrics := observability.NewMetrics()
	tokens := shared.NewActionTokenStore(redisClient, cfg.ActionTokenTTL)
	unitCatalog := units.NewCachedCatalog(units.NewRepository(pool), redisClient, cfg.UnitCacheTTL, logger)

	repo := inventory.NewRepository(pool, db.TxOptions{LockTimeout: cfg.LockTimeout})
	service := inventory.NewService(
		repo,
		shared.NewAuditLogger(pool),
		tokens,
		units.NewPolicy(unitCatalog),
		inventory.ServiceConfig{
			ReferenceAttempts: cfg.ReferenceMaxAttempts,
			Logger:            logger,
			Metrics:           metrics.Inventory(),
		},
		jobClient,
	)

	return &Runtime{
		Pool:      pool,
		Redis:     redisClient,
		Tokens:    tokens,
		JobClient: jobClient,
		Metrics:   metrics,
		Inventory: service,
		logger:    logger,
	}, nil
}

// Readiness returns the dependency checks served on /readyz.
func (rt *Runtime) Readiness() map[string]Pinger {
	return map[string]Pinger{
		"postgres": rt.Pool,
		"redis": PingFunc(func(ctx context.Context) error {
			return rt.Redis.Ping(ctx).Err()
		}),
	}
}

// Close releases every connection held by the runtime.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if err := rt.JobClient.Close(); err != nil {
		rt.logger.Warn("job client close", slog.Any("error", err))
	}
	if err := rt.Redis.Close(); err != nil {
		rt.logger.Warn("redis close", slog.Any("error", err))
	}
	rt.Pool.Close()
}
