package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Event sinks.
const (
	SinkLog   = "log"
	SinkRedis = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Redis    RedisConfig
	Events   EventsConfig
	Workflow WorkflowConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend        string
	MigrateOnStart bool
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	PoolMin  int
	PoolMax  int
}

// URL returns the connection string for the database.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// RedisConfig holds the Redis connection used by the event sink.
type RedisConfig struct {
	URL string
}

// EventsConfig controls post-commit event delivery.
type EventsConfig struct {
	Sink       string
	Stream     string
	MaxRetries int
	QueueSize  int
}

// WorkflowConfig holds the tunable rules of the workflow engine.
type WorkflowConfig struct {
	ObjectionWindow time.Duration
	// RequestSLA maps service request type to its resolution deadline.
	RequestSLA      map[string]time.Duration
	PermissionsFile string
}

// envFiles are loaded before reading the environment. Missing files are ignored.
var envFiles = []string{".env"}

// Load reads configuration from environment variables.
// It uses viper to read values and provides sensible defaults for development.
func Load() (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE", StorePostgres)
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "landflow")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("EVENTS_SINK", SinkLog)
	v.SetDefault("EVENTS_STREAM", "landflow:events")
	v.SetDefault("EVENTS_MAX_RETRIES", 5)
	v.SetDefault("EVENTS_QUEUE_SIZE", 256)
	v.SetDefault("OBJECTION_WINDOW_DAYS", 60)
	v.SetDefault("SERVICE_REQUEST_SLA", "certificate=168h,mutation=720h,map_copy=72h,grievance=360h")
	v.SetDefault("PERMISSIONS_FILE", "")

	// Bind environment variables
	v.AutomaticEnv()

	sla, err := parseSLA(v.GetString("SERVICE_REQUEST_SLA"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Store: StoreConfig{
			Backend:        strings.ToLower(v.GetString("STORE")),
			MigrateOnStart: v.GetBool("MIGRATE_ON_START"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		Events: EventsConfig{
			Sink:       strings.ToLower(v.GetString("EVENTS_SINK")),
			Stream:     v.GetString("EVENTS_STREAM"),
			MaxRetries: v.GetInt("EVENTS_MAX_RETRIES"),
			QueueSize:  v.GetInt("EVENTS_QUEUE_SIZE"),
		},
		Workflow: WorkflowConfig{
			ObjectionWindow: time.Duration(v.GetInt("OBJECTION_WINDOW_DAYS")) * 24 * time.Hour,
			RequestSLA:      sla,
			PermissionsFile: v.GetString("PERMISSIONS_FILE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if err := c.Database.validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store.Backend)
	}

	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	switch c.Events.Sink {
	case SinkLog:
	case SinkRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when EVENTS_SINK is redis")
		}
		if c.Events.Stream == "" {
			return fmt.Errorf("EVENTS_STREAM is required when EVENTS_SINK is redis")
		}
	default:
		return fmt.Errorf("EVENTS_SINK must be %q or %q, got %q", SinkLog, SinkRedis, c.Events.Sink)
	}
	if c.Events.MaxRetries < 0 {
		return fmt.Errorf("EVENTS_MAX_RETRIES must be non-negative")
	}
	if c.Events.QueueSize < 1 {
		return fmt.Errorf("EVENTS_QUEUE_SIZE must be at least 1")
	}

	if c.Workflow.ObjectionWindow <= 0 {
		return fmt.Errorf("OBJECTION_WINDOW_DAYS must be at least 1")
	}

	return nil
}

func (d DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if d.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if d.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if d.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if d.PoolMin > d.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	return nil
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSLA reads "type=duration" pairs, e.g. "certificate=168h,map_copy=72h".
func parseSLA(raw string) (map[string]time.Duration, error) {
	result := make(map[string]time.Duration)
	for _, pair := range parseOrigins(raw) {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("SERVICE_REQUEST_SLA entry %q must look like type=duration", pair)
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("SERVICE_REQUEST_SLA entry %q: %w", pair, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("SERVICE_REQUEST_SLA entry %q must be positive", pair)
		}
		result[strings.TrimSpace(name)] = d
	}
	return result, nil
}
