package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/yungbote/topicgen-backend/internal/clients/workflow"
	"github.com/yungbote/topicgen-backend/internal/data/db"
	"github.com/yungbote/topicgen-backend/internal/normalization"
	"github.com/yungbote/topicgen-backend/internal/services"
)

// Config is loaded from the environment, optionally seeded by a .env file.
type Config struct {
	Env       string        `env:"APP_ENV" envDefault:"development"`
	LogMode   string        `env:"LOG_MODE" envDefault:"development"`
	LogLevel  string        `env:"LOG_LEVEL" envDefault:"info"`
	LogSalt   string        `env:"LOG_HASH_SALT"`
	Port      string        `env:"PORT" envDefault:"8080"`
	Version   string        `env:"APP_VERSION" envDefault:"dev"`
	Shutdown  time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	JWTSecret string        `env:"JWT_SECRET_KEY"`

	CORSOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:","`

	DB        DBConfig        `envPrefix:"DB_"`
	Postgres  PostgresConfig  `envPrefix:"POSTGRES_"`
	Workflow  WorkflowConfig  `envPrefix:"WORKFLOW_"`
	Temporal  TemporalConfig  `envPrefix:"TEMPORAL_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Normalize NormalizeConfig `envPrefix:"NORMALIZE_"`
	Otel      OtelConfig      `envPrefix:"OTEL_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`

	JobCacheTTL time.Duration `env:"JOB_CACHE_TTL" envDefault:"10m"`
}

type DBConfig struct {
	Driver        string        `env:"DRIVER" envDefault:"postgres"`
	DSN           string        `env:"DSN"`
	AutoMigrate   bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	SlowThreshold time.Duration `env:"SLOW_THRESHOLD" envDefault:"500ms"`
}

type PostgresConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"topicgen"`
}

type WorkflowConfig struct {
	Mode            string        `env:"MODE" envDefault:"webhook"`
	WebhookURL      string        `env:"WEBHOOK_URL"`
	DispatchTimeout time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"15s"`
	CallbackURL     string        `env:"CALLBACK_URL"`
	CallbackSecret  string        `env:"CALLBACK_SECRET"`
}

type TemporalConfig struct {
	Address               string        `env:"ADDRESS"`
	Namespace             string        `env:"NAMESPACE" envDefault:"default"`
	TaskQueue             string        `env:"TASK_QUEUE" envDefault:"topicgen"`
	WorkflowType          string        `env:"WORKFLOW_TYPE" envDefault:"topic_generation"`
	ClientCertPath        string        `env:"CLIENT_CERT_PATH"`
	ClientKeyPath         string        `env:"CLIENT_KEY_PATH"`
	ClientCAPath          string        `env:"CLIENT_CA_PATH"`
	DialMaxWait           time.Duration `env:"DIAL_MAX_WAIT" envDefault:"30s"`
	AutoRegisterNamespace bool          `env:"AUTO_REGISTER_NAMESPACE" envDefault:"false"`
	RetentionDays         int           `env:"NAMESPACE_RETENTION_DAYS" envDefault:"7"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type NormalizeConfig struct {
	Levels       []string `env:"LEVELS" envSeparator:","`
	MaxDepth     int      `env:"MAX_DEPTH" envDefault:"6"`
	PreviewLimit int      `env:"PREVIEW_LIMIT" envDefault:"2000"`
	EmbeddedKeys []string `env:"EMBEDDED_KEYS" envSeparator:","`
}

type OtelConfig struct {
	Enabled     bool    `env:"ENABLED" envDefault:"false"`
	Endpoint    string  `env:"EXPORTER_OTLP_ENDPOINT"`
	Headers     string  `env:"EXPORTER_OTLP_HEADERS"`
	Insecure    bool    `env:"EXPORTER_OTLP_INSECURE" envDefault:"false"`
	SampleRatio float64 `env:"SAMPLER_RATIO" envDefault:"1"`
	ServiceName string  `env:"SERVICE_NAME" envDefault:"topicgen"`
}

type MetricsConfig struct {
	Enabled        bool          `env:"ENABLED" envDefault:"false"`
	ScrapeInterval time.Duration `env:"SCRAPE_INTERVAL" envDefault:"15s"`
}

// LoadConfig reads .env when present, parses the environment and sanitizes
// the result.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env file: %w", err)
	}
	return ParseConfig(env.Options{})
}

// ParseConfig parses opts.Environment (or the process env when nil).
func ParseConfig(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sanitize clamps timeouts and limits and fills blanks.
func (c *Config) Sanitize() {
	c.Port = strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.Shutdown <= 0 {
		c.Shutdown = 15 * time.Second
	}
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	if c.DB.Driver == "" {
		c.DB.Driver = db.DriverPostgres
	}
	c.Workflow.Mode = strings.ToLower(strings.TrimSpace(c.Workflow.Mode))
	if c.Workflow.Mode == "" {
		c.Workflow.Mode = workflow.ModeWebhook
	}
	c.Workflow.DispatchTimeout = services.ClampDispatchTimeout(c.Workflow.DispatchTimeout)
	if c.JobCacheTTL <= 0 {
		c.JobCacheTTL = 10 * time.Minute
	}
	if c.Normalize.MaxDepth <= 0 || c.Normalize.MaxDepth > 32 {
		c.Normalize.MaxDepth = normalization.DefaultMaxDepth
	}
	if c.Normalize.PreviewLimit <= 0 {
		c.Normalize.PreviewLimit = normalization.DefaultPreviewLimit
	}
	c.Normalize.Levels = trimAll(c.Normalize.Levels)
	c.Normalize.EmbeddedKeys = trimAll(c.Normalize.EmbeddedKeys)
	c.CORSOrigins = trimAll(c.CORSOrigins)
	if c.Otel.SampleRatio < 0 || c.Otel.SampleRatio > 1 {
		c.Otel.SampleRatio = 1
	}
	if c.Metrics.ScrapeInterval <= 0 {
		c.Metrics.ScrapeInterval = 15 * time.Second
	}
}

// Validate rejects configurations that cannot serve requests.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET_KEY is required")
	}
	switch c.DB.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	switch c.Workflow.Mode {
	case workflow.ModeWebhook:
		if strings.TrimSpace(c.Workflow.WebhookURL) == "" {
			return errors.New("WORKFLOW_WEBHOOK_URL is required in webhook mode")
		}
	case workflow.ModeTemporal:
		if strings.TrimSpace(c.Temporal.Address) == "" {
			return errors.New("TEMPORAL_ADDRESS is required in temporal mode")
		}
	default:
		return fmt.Errorf("unsupported WORKFLOW_MODE %q", c.Workflow.Mode)
	}
	return nil
}

func (c Config) Addr() string { return ":" + c.Port }

func (c Config) DBConfig() db.Config {
	return db.Config{
		Driver:        c.DB.Driver,
		DSN:           c.DB.DSN,
		Host:          c.Postgres.Host,
		Port:          c.Postgres.Port,
		User:          c.Postgres.User,
		Password:      c.Postgres.Password,
		Name:          c.Postgres.Name,
		SlowThreshold: c.DB.SlowThreshold,
	}
}

func (c Config) NormalizeOptions() normalization.Options {
	return normalization.Options{
		Levels:       c.Normalize.Levels,
		MaxDepth:     c.Normalize.MaxDepth,
		PreviewLimit: c.Normalize.PreviewLimit,
		EmbeddedKeys: c.Normalize.EmbeddedKeys,
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
