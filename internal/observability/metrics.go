package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/topicgen-backend/internal/domain/jobs"
	"github.com/yungbote/topicgen-backend/internal/platform/logger"
)

const DefaultScrapeInterval = 15 * time.Second

type Metrics struct {
	apiRequests       *CounterVec
	apiLatency        *HistogramVec
	apiInflight       *Gauge
	jobsCreated       *CounterVec
	dispatches        *CounterVec
	dispatchLatency   *HistogramVec
	callbacks         *CounterVec
	normalizeFailures *CounterVec
	progressWrites    *CounterVec
	jobStates         *GaugeVec
	dbStats           *GaugeVec
	redisUp           *Gauge
	redisPing         *Gauge

	scrapeInterval time.Duration
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init builds the process-wide registry once. It returns nil when disabled and
// every Metrics method is a no-op on a nil receiver.
func Init(enabled bool, scrapeInterval time.Duration) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics(scrapeInterval)
	})
	return instance
}

func Current() *Metrics {
	return instance
}

// NewMetrics returns an unshared registry.
func NewMetrics(scrapeInterval time.Duration) *Metrics {
	if scrapeInterval <= 0 {
		scrapeInterval = DefaultScrapeInterval
	}
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	return &Metrics{
		apiRequests: NewCounterVec("topicgen_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"topicgen_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			latency,
		),
		apiInflight: NewGauge("topicgen_api_inflight_requests", "In-flight API requests."),
		jobsCreated: NewCounterVec("topicgen_jobs_created_total", "Generation jobs accepted.", nil),
		dispatches:  NewCounterVec("topicgen_dispatch_total", "Workflow dispatch attempts by dispatcher/outcome.", []string{"dispatcher", "outcome"}),
		dispatchLatency: NewHistogramVec(
			"topicgen_dispatch_duration_seconds",
			"Workflow dispatch latency in seconds by dispatcher/outcome.",
			[]string{"dispatcher", "outcome"},
			latency,
		),
		callbacks:         NewCounterVec("topicgen_callbacks_total", "Workflow callbacks by outcome.", []string{"outcome"}),
		normalizeFailures: NewCounterVec("topicgen_normalize_failures_total", "Result normalization failures by kind.", []string{"kind"}),
		progressWrites:    NewCounterVec("topicgen_progress_writes_total", "Progress record writes by operation.", []string{"op"}),
		jobStates:         NewGaugeVec("topicgen_jobs_by_state", "Stored generation jobs by state.", []string{"state"}),
		dbStats:           NewGaugeVec("topicgen_db_stats", "Database pool stats.", []string{"stat"}),
		redisUp:           NewGauge("topicgen_redis_up", "Redis reachability (1=up)."),
		redisPing:         NewGauge("topicgen_redis_ping_seconds", "Redis ping latency in seconds."),
		scrapeInterval:    scrapeInterval,
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.jobsCreated, m.dispatches, m.dispatchLatency,
		m.callbacks, m.normalizeFailures, m.progressWrites,
		m.jobStates, m.dbStats, m.redisUp, m.redisPing,
	}
	for _, wr := range writers {
		if err := wr.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncJobCreated() {
	if m == nil {
		return
	}
	m.jobsCreated.Inc()
}

// ObserveDispatch records one dispatch attempt. outcome is "ok", "timeout" or
// "error".
func (m *Metrics) ObserveDispatch(dispatcher, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.dispatches.Inc(dispatcher, outcome)
	m.dispatchLatency.Observe(dur.Seconds(), dispatcher, outcome)
}

func (m *Metrics) IncCallback(outcome string) {
	if m == nil {
		return
	}
	m.callbacks.Inc(outcome)
}

func (m *Metrics) IncNormalizeFailure(kind string) {
	if m == nil {
		return
	}
	m.normalizeFailures.Inc(kind)
}

func (m *Metrics) IncProgressWrite(op string) {
	if m == nil {
		return
	}
	m.progressWrites.Inc(op)
}

// CallbackCount is used by tests and health reporting.
func (m *Metrics) CallbackCount(outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.callbacks.Value(outcome)
}

func (m *Metrics) DispatchCount(dispatcher, outcome string) float64 {
	if m == nil {
		return 0
	}
	return m.dispatches.Value(dispatcher, outcome)
}

func (m *Metrics) NormalizeFailureCount(kind string) float64 {
	if m == nil {
		return 0
	}
	return m.normalizeFailures.Value(kind)
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	m.every(ctx, func() {
		sqlDB, err := db.DB()
		if err != nil {
			if log != nil {
				log.Warn("metrics: db stats unavailable", "error", err)
			}
			return
		}
		stats := sqlDB.Stats()
		m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
		m.dbStats.Set(float64(stats.InUse), "in_use")
		m.dbStats.Set(float64(stats.Idle), "idle")
		m.dbStats.Set(float64(stats.WaitCount), "wait_count")
		m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
		m.dbStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
	})
}

// StartJobStateCollector periodically counts stored jobs per state.
func (m *Metrics) StartJobStateCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	m.every(ctx, func() {
		if err := m.CollectJobStates(ctx, db); err != nil && log != nil {
			log.Warn("metrics: job state query failed", "error", err)
		}
	})
}

func (m *Metrics) CollectJobStates(ctx context.Context, db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}
	var rows []struct {
		State string
		Count int64
	}
	if err := db.WithContext(ctx).
		Model(&jobs.Job{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, s := range []jobs.State{jobs.StateProcessing, jobs.StateCompleted, jobs.StateFailed} {
		m.jobStates.Set(0, string(s))
	}
	for _, row := range rows {
		state := strings.TrimSpace(row.State)
		if state == "" {
			state = "unknown"
		}
		m.jobStates.Set(float64(row.Count), state)
	}
	return nil
}

func (m *Metrics) JobStateCount(state jobs.State) float64 {
	if m == nil {
		return 0
	}
	return m.jobStates.Value(string(state))
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, client redis.UniversalClient) {
	if m == nil || client == nil {
		return
	}
	m.every(ctx, func() {
		start := time.Now()
		if err := client.Ping(ctx).Err(); err != nil {
			m.redisUp.Set(0)
			if log != nil {
				log.Warn("metrics: redis ping failed", "error", err)
			}
			return
		}
		m.redisUp.Set(1)
		m.redisPing.Set(time.Since(start).Seconds())
	})
}

func (m *Metrics) every(ctx context.Context, fn func()) {
	go func() {
		ticker := time.NewTicker(m.scrapeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}
