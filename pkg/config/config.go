package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix scopes every environment variable the service reads.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Sweep        SweepConfig
	Outbox       OutboxConfig
	PubSub       PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BIJOUX_APP_ENV" required:"true"`
	Port         string `envconfig:"BIJOUX_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"BIJOUX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BIJOUX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BIJOUX_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BIJOUX_DB_DSN"`
	Driver string `envconfig:"BIJOUX_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"BIJOUX_DB_HOST"`
	Port     int    `envconfig:"BIJOUX_DB_PORT" default:"5432"`
	User     string `envconfig:"BIJOUX_DB_USER"`
	Password string `envconfig:"BIJOUX_DB_PASSWORD"`
	Name     string `envconfig:"BIJOUX_DB_NAME"`
	SSLMode  string `envconfig:"BIJOUX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BIJOUX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BIJOUX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BIJOUX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BIJOUX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either BIJOUX_DB_DSN or host/user/name components are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"BIJOUX_REDIS_URL" required:"true"`
	Password     string        `envconfig:"BIJOUX_REDIS_PASSWORD"`
	DB           int           `envconfig:"BIJOUX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BIJOUX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BIJOUX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BIJOUX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BIJOUX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BIJOUX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BIJOUX_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BIJOUX_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BIJOUX_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BIJOUX_FEATURE_AUTO_MIGRATE" default:"false"`
}

// SweepConfig tunes the background workers that keep limits and approval
// requests moving: period rollover, escalation, and threshold alerts.
type SweepConfig struct {
	Interval        time.Duration `envconfig:"BIJOUX_SWEEP_INTERVAL" default:"5m"`
	LockTTL         time.Duration `envconfig:"BIJOUX_SWEEP_LOCK_TTL" default:"10m"`
	EscalationBatch int           `envconfig:"BIJOUX_SWEEP_ESCALATION_BATCH" default:"100"`
	RolloverBatch   int           `envconfig:"BIJOUX_SWEEP_ROLLOVER_BATCH" default:"200"`
	RetentionDays   int           `envconfig:"BIJOUX_SWEEP_RETENTION_DAYS" default:"30"`
}

type OutboxConfig struct {
	BatchSize    int           `envconfig:"BIJOUX_OUTBOX_BATCH_SIZE" default:"50"`
	PollInterval time.Duration `envconfig:"BIJOUX_OUTBOX_POLL_INTERVAL" default:"500ms"`
	MaxAttempts  int           `envconfig:"BIJOUX_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type PubSubConfig struct {
	ProjectID   string `envconfig:"BIJOUX_PUBSUB_PROJECT_ID"`
	DomainTopic string `envconfig:"BIJOUX_PUBSUB_DOMAIN_TOPIC" default:"bijoux-domain-events"`
}
