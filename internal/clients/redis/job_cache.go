package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
)

const (
	DefaultTTL    = 10 * time.Minute
	defaultPrefix = "topicgen:job:"
)

// JobCache holds terminal jobs only. A terminal job never changes again, so
// entries are valid until evicted on delete or expired by TTL.
type JobCache interface {
	Get(ctx context.Context, id uuid.UUID) (*jobs.Job, bool, error)
	Put(ctx context.Context, job *jobs.Job) error
	Evict(ctx context.Context, id uuid.UUID) error
	Close() error
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

type jobCache struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewJobCache(log *logger.Logger, cfg Config) (JobCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewJobCacheWithClient(log, rdb, cfg.TTL, cfg.Prefix), nil
}

func NewJobCacheWithClient(log *logger.Logger, rdb goredis.UniversalClient, ttl time.Duration, prefix string) JobCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultPrefix
	}
	return &jobCache{
		log:    log.With("service", "RedisJobCache"),
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
	}
}

func (c *jobCache) key(id uuid.UUID) string { return c.prefix + id.String() }

func (c *jobCache) Get(ctx context.Context, id uuid.UUID) (*jobs.Job, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var job jobs.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		c.log.Warn("dropping unreadable cache entry", "job_id", id, "error", err)
		_ = c.rdb.Del(ctx, c.key(id)).Err()
		return nil, false, nil
	}
	return &job, true, nil
}

// Put ignores non-terminal jobs.
func (c *jobCache) Put(ctx context.Context, job *jobs.Job) error {
	if job == nil || !job.State.Terminal() {
		return nil
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.key(job.ID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *jobCache) Evict(ctx context.Context, id uuid.UUID) error {
	if err := c.rdb.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (c *jobCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// NopJobCache is used when REDIS_ADDR is unset.
type NopJobCache struct{}

func (NopJobCache) Get(context.Context, uuid.UUID) (*jobs.Job, bool, error) { return nil, false, nil }
func (NopJobCache) Put(context.Context, *jobs.Job) error                   { return nil }
func (NopJobCache) Evict(context.Context, uuid.UUID) error                 { return nil }
func (NopJobCache) Close() error                                           { return nil }
