package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/flexprice/couponengine/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Engine     EngineConfig     `mapstructure:"engine" validate:"required"`
	Event      EventConfig      `mapstructure:"event"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

type PostgresConfig struct {
	// Driver is the database/sql driver name, postgres or sqlite3
	Driver   string `mapstructure:"driver" validate:"required,oneof=postgres sqlite3"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	// DSN overrides the host based connection string, used for sqlite file paths
	DSN string `mapstructure:"dsn"`

	MaxOpenConns           int  `mapstructure:"max_open_conns"`
	MaxIdleConns           int  `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int  `mapstructure:"conn_max_lifetime_minutes"`
	AutoMigrate            bool `mapstructure:"auto_migrate"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// EngineConfig tunes coupon evaluation and the reconciliation batch
type EngineConfig struct {
	// NewUserThresholdDays is the account age under which a user counts as new
	NewUserThresholdDays int `mapstructure:"new_user_threshold_days" validate:"gte=0"`
	// ReconcileEpsilon is the tolerated commission difference in minor units
	ReconcileEpsilon     int64         `mapstructure:"reconcile_epsilon" validate:"gte=0"`
	ReconcilePageSize    int           `mapstructure:"reconcile_page_size" validate:"gte=0"`
	ReconcileConcurrency int           `mapstructure:"reconcile_concurrency" validate:"gte=0"`
	ReconcileLockTTL     time.Duration `mapstructure:"reconcile_lock_ttl"`
	ReconcileMaxRetries  uint64        `mapstructure:"reconcile_max_retries"`
}

// NewUserThreshold returns the new user account age as a duration
func (c EngineConfig) NewUserThreshold() time.Duration {
	return time.Duration(c.NewUserThresholdDays) * 24 * time.Hour
}

// EventConfig holds configuration for ledger event publishing
type EventConfig struct {
	PublishDestination types.PublishDestination `mapstructure:"publish_destination"`
	Topic              string                   `mapstructure:"topic"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ClientID      string   `mapstructure:"client_id"`
	TLS           bool     `mapstructure:"tls"`
	UseSASL       bool     `mapstructure:"use_sasl"`
	SASLMechanism string   `mapstructure:"sasl_mechanism"`
	SASLUser      string   `mapstructure:"sasl_user"`
	SASLPassword  string   `mapstructure:"sasl_password"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func NewConfig() (*Configuration, error) {
	// a local .env only seeds the environment, real variables win
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/couponengine")

	v.SetEnvPrefix("COUPONENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("postgres.driver", "postgres")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime_minutes", 60)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("engine.new_user_threshold_days", 30)
	v.SetDefault("engine.reconcile_epsilon", 0)
	v.SetDefault("engine.reconcile_page_size", 100)
	v.SetDefault("engine.reconcile_concurrency", 8)
	v.SetDefault("engine.reconcile_lock_ttl", time.Hour)
	v.SetDefault("engine.reconcile_max_retries", 3)
	v.SetDefault("event.publish_destination", types.PublishToMemory)
	v.SetDefault("event.topic", "coupon_ledger_events")
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or tests
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Postgres:   PostgresConfig{Driver: "sqlite3", DSN: ":memory:"},
		Cache:      CacheConfig{Enabled: true, TTL: 5 * time.Minute},
		Engine: EngineConfig{
			NewUserThresholdDays: 30,
			ReconcilePageSize:    100,
			ReconcileConcurrency: 4,
			ReconcileLockTTL:     time.Hour,
			ReconcileMaxRetries:  3,
		},
		Event: EventConfig{PublishDestination: types.PublishToMemory, Topic: "coupon_ledger_events"},
	}
}

func (c PostgresConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}

// GetURL returns the connection string in URL form, as expected by golang-migrate
func (c PostgresConfig) GetURL() string {
	if strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://") {
		return c.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}
