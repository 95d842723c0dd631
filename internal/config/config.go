package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/oriys/dbkit/internal/dbaccess"
	"github.com/oriys/dbkit/internal/logging"
	"github.com/oriys/dbkit/internal/observability"
	"github.com/oriys/dbkit/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. DBKIT_POSTGRES_DSN.
const EnvPrefix = "DBKIT"

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level" validate:"loglevel"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr" validate:"required_if=Enabled true"`
	Namespace string `yaml:"namespace"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Backend   string                `yaml:"backend" validate:"oneof=postgres mysql cassandra"`
	Postgres  store.PostgresConfig  `yaml:"postgres" envconfig:"POSTGRES"`
	MySQL     store.MySQLConfig     `yaml:"mysql" envconfig:"MYSQL"`
	Cassandra store.CassandraConfig `yaml:"cassandra" envconfig:"CASSANDRA"`
	Limits    dbaccess.Limits       `yaml:"limits" envconfig:"LIMITS"`
	Log       LogConfig             `yaml:"log" envconfig:"LOG"`
	Metrics   MetricsConfig         `yaml:"metrics" envconfig:"METRICS"`
	Tracing   observability.Config  `yaml:"tracing" envconfig:"TRACING"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: store.BackendPostgres,
		Postgres: store.PostgresConfig{
			DSN:               "postgres://localhost:5432/postgres?sslmode=disable",
			MaxConns:          10,
			MaxConnLifetime:   time.Hour,
			HealthCheckPeriod: time.Minute,
		},
		MySQL: store.MySQLConfig{
			Host:            "localhost",
			Port:            3306,
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			DialTimeout:     10 * time.Second,
		},
		Cassandra: store.CassandraConfig{
			Hosts:          []string{"localhost"},
			Consistency:    "local_quorum",
			Timeout:        10 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr:      ":9090",
			Namespace: "dbkit",
		},
		Tracing: observability.Config{
			Exporter:    "otlp-http",
			Endpoint:    "localhost:4318",
			ServiceName: "dbkit",
			SampleRate:  1.0,
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv applies DBKIT_* environment variable overrides to the config.
// Variables that are not set leave the current value untouched.
func LoadFromEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("process environment: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds the effective configuration: defaults, then the YAML file at
// path when path is not empty, then environment overrides. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Accept exactly the levels the logger parses, in any case.
	err := v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, ok := logging.ParseLevel(fl.Field().String())
		return ok
	})
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks field constraints and that the selected backend has the
// settings it needs to connect.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Backend {
	case store.BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("invalid config: postgres.dsn is required for backend %q", c.Backend)
		}
	case store.BackendMySQL:
		if c.MySQL.User == "" {
			return fmt.Errorf("invalid config: mysql.user is required for backend %q", c.Backend)
		}
	case store.BackendCassandra:
		if len(c.Cassandra.Hosts) == 0 {
			return fmt.Errorf("invalid config: cassandra.hosts is required for backend %q", c.Backend)
		}
	}
	return nil
}
