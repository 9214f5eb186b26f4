package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/topicgen-backend/internal/clients/redis"
	"github.com/yungbote/topicgen-backend/internal/clients/workflow"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
	"github.com/yungbote/topicgen-backend/internal/temporalx"
)

type Clients struct {
	Temporal   temporalsdkclient.Client
	Redis      goredis.UniversalClient
	JobCache   redis.JobCache
	Dispatcher workflow.Dispatcher
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Redis (optional terminal job cache)
	out.JobCache = redis.NopJobCache{}
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: 5 * time.Second,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis job cache: %w", err)
		}
		out.Redis = rdb
		out.JobCache = redis.NewJobCacheWithClient(log, rdb, cfg.JobCacheTTL, "")
	}

	// Workflow dispatcher
	switch cfg.Workflow.Mode {
	case workflow.ModeTemporal:
		tcfg := temporalx.Config{
			Address:               cfg.Temporal.Address,
			Namespace:             cfg.Temporal.Namespace,
			TaskQueue:             cfg.Temporal.TaskQueue,
			WorkflowType:          cfg.Temporal.WorkflowType,
			ClientCertPath:        cfg.Temporal.ClientCertPath,
			ClientKeyPath:         cfg.Temporal.ClientKeyPath,
			ClientCAPath:          cfg.Temporal.ClientCAPath,
			DialMaxWait:           cfg.Temporal.DialMaxWait,
			AutoRegisterNamespace: cfg.Temporal.AutoRegisterNamespace,
			RetentionDays:         cfg.Temporal.RetentionDays,
		}.WithDefaults()
		tc, err := temporalx.NewClient(log, tcfg)
		if err != nil {
			out.Close()
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
		out.Temporal = tc
		out.Dispatcher = workflow.NewTemporalDispatcher(log, tc, workflow.TemporalConfig{
			TaskQueue:    tcfg.TaskQueue,
			WorkflowType: tcfg.WorkflowType,
		})
	default:
		out.Dispatcher = workflow.NewWebhookDispatcher(log, workflow.WebhookConfig{
			URL:     cfg.Workflow.WebhookURL,
			Timeout: cfg.Workflow.DispatchTimeout,
			Secret:  cfg.Workflow.CallbackSecret,
		}, nil)
	}
	log.Info("Workflow dispatcher ready", "mode", out.Dispatcher.Name())
	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	// The job cache owns the redis client.
	if c.JobCache != nil {
		_ = c.JobCache.Close()
	}
}
