package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_PORT"` specify the environment variable name.
// `default:""` provides a default value if the env var is not set.
// `required:"true"` makes an environment variable mandatory.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"` // e.g., development, staging, production
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`      // e.g., debug, info, warn, error
	HttpServer ServerConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Geocoder   GeocoderConfig
	Discovery  DiscoveryConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
}

// PostgresConfig holds PostgreSQL database connection details.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	DBName   string `envconfig:"POSTGRES_DBNAME" required:"true"`
}

// RedisConfig holds the session store connection details.
type RedisConfig struct {
	Addr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password   string        `envconfig:"REDIS_PASSWORD" default:""`
	DB         int           `envconfig:"REDIS_DB" default:"0"`
	SessionTTL time.Duration `envconfig:"REDIS_SESSION_TTL" default:"12h"`
}

// GeocoderConfig holds the reverse-geocoding provider settings.
type GeocoderConfig struct {
	NominatimBaseURL string        `envconfig:"GEOCODER_NOMINATIM_BASE_URL" default:"https://nominatim.openstreetmap.org"`
	UserAgent        string        `envconfig:"GEOCODER_USER_AGENT" default:"marketplace-discovery-service"`
	Timeout          time.Duration `envconfig:"GEOCODER_TIMEOUT" default:"5s"`
	OfflineDataDir   string        `envconfig:"GEOCODER_OFFLINE_DATA_DIR" default:"./geobed-data"`
	OfflineCacheDir  string        `envconfig:"GEOCODER_OFFLINE_CACHE_DIR" default:"./geobed-cache"`
	OfflineEnabled   bool          `envconfig:"GEOCODER_OFFLINE_ENABLED" default:"true"`
}

// DiscoveryConfig tunes the discovery pipeline.
type DiscoveryConfig struct {
	CoarseFetchLimit int `envconfig:"DISCOVERY_COARSE_FETCH_LIMIT" default:"1000"`
	NearbyPreviewCap int `envconfig:"DISCOVERY_NEARBY_PREVIEW_CAP" default:"6"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName)
}

var cfg Config

// Load initializes the configuration from environment variables.
// It should be called once during application startup.
func Load() (*Config, error) {
	log.Println("Loading service configuration...")
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}

	log.Printf("Configuration loaded successfully for APP_ENV: %s", cfg.AppEnv)
	return &cfg, nil
}

// Get returns the loaded configuration.
// Panics if Load() has not been called successfully.
func Get() *Config {
	if cfg.Postgres.Host == "" { // Simple check to see if cfg is populated
		log.Fatal("Configuration has not been loaded. Call config.Load() first.")
	}
	return &cfg
}
