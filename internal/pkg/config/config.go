package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Backends selectable for corridor.index_backend.
const (
	IndexBackendValkey   = "valkey"
	IndexBackendPostgres = "postgres"
	IndexBackendMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Corridor  CorridorConfig  `mapstructure:"corridor"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"`
}

// CorridorConfig tunes the analysis engine and its index backend.
type CorridorConfig struct {
	IndexBackend         string  `mapstructure:"index_backend"`
	DefaultBufferWidthM  float64 `mapstructure:"default_buffer_width_m"`
	MaxLegs              int     `mapstructure:"max_legs"`
	MaxLegPoints         int     `mapstructure:"max_leg_points"`
	MaxConcurrentQueries int     `mapstructure:"max_concurrent_queries"`
	GeoKey               string  `mapstructure:"geo_key"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "corridor")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "corridor")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("corridor.index_backend", IndexBackendValkey)
	v.SetDefault("corridor.default_buffer_width_m", 50.0)
	v.SetDefault("corridor.max_legs", 100)
	v.SetDefault("corridor.max_leg_points", 1000)
	v.SetDefault("corridor.max_concurrent_queries", 16)
	v.SetDefault("corridor.geo_key", "corridor:geo")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "corridor-scans")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: CORRIDOR_DATABASE_HOST → database.host
	v.SetEnvPrefix("CORRIDOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Host == "" {
		errs = append(errs, "database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
	}
	if c.Database.User == "" {
		errs = append(errs, "database.user is required")
	}
	if c.Database.DBName == "" {
		errs = append(errs, "database.dbname is required")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}

	switch c.Corridor.IndexBackend {
	case IndexBackendValkey:
		if c.Valkey.Addr == "" {
			errs = append(errs, "valkey.addr is required for the valkey index backend")
		}
	case IndexBackendPostgres, IndexBackendMemory:
	default:
		errs = append(errs, fmt.Sprintf("corridor.index_backend must be valkey, postgres, or memory, got %q", c.Corridor.IndexBackend))
	}
	if c.Corridor.DefaultBufferWidthM < 0.1 {
		errs = append(errs, fmt.Sprintf("corridor.default_buffer_width_m must be at least 0.1, got %g", c.Corridor.DefaultBufferWidthM))
	}
	if c.Corridor.MaxLegs <= 0 {
		errs = append(errs, "corridor.max_legs must be positive")
	}
	if c.Corridor.MaxLegPoints < 2 {
		errs = append(errs, "corridor.max_leg_points must be at least 2")
	}
	if c.Corridor.MaxConcurrentQueries <= 0 {
		errs = append(errs, "corridor.max_concurrent_queries must be positive")
	}
	if c.Temporal.HostPort == "" {
		errs = append(errs, "temporal.host_port is required")
	}
	if c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
