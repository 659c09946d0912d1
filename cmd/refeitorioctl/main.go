package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/refeitorio/refeitorio/internal/app"
	"github.com/refeitorio/refeitorio/internal/cli"
	"github.com/refeitorio/refeitorio/internal/platform/cache"
	"github.com/refeitorio/refeitorio/internal/platform/db"
	"github.com/refeitorio/refeitorio/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(connect).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*cli.Backend, func(), error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	closers := []func(){pool.Close}
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, cache bumps and job queue disabled", slog.Any("error", err))
	} else {
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	services := app.NewServices(cfg, pool, redisClient, logger, nil)
	if err := services.Settings.Seed(ctx); err != nil {
		release()
		return nil, nil, err
	}

	backend := &cli.Backend{
		Importer:      services.Importer,
		Settings:      services.Settings,
		Audit:         services.Audit,
		RetentionDays: cfg.AuditRetentionDays,
	}
	if redisClient != nil {
		client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		closers = append(closers, func() { _ = client.Close() })
		backend.Queue = queue{client: client}
	}
	return backend, release, nil
}

type queue struct {
	client *jobs.Client
}

func (q queue) EnqueueAuditPurge(ctx context.Context, days int) (string, error) {
	info, err := q.client.EnqueueAuditPurge(ctx, jobs.AuditPurgePayload{RetentionDays: days})
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (q queue) EnqueueReportsWarmup(ctx context.Context) (string, error) {
	info, err := q.client.EnqueueReportsWarmup(ctx)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}
