package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store drivers
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds all application configuration
type Config struct {
	Bot       BotConfig
	Weather   WeatherConfig
	Store     StoreConfig
	DB        DBConfig
	Scheduler SchedulerConfig
	Server    ServerConfig
	Log       LogConfig
}

// BotConfig holds Telegram bot configuration
type BotConfig struct {
	Token string `envconfig:"BOT_TOKEN" required:"true"`
}

// WeatherConfig holds OpenWeather client configuration
type WeatherConfig struct {
	APIKey     string        `envconfig:"WEATHER_API_KEY" required:"true"`
	BaseURL    string        `envconfig:"WEATHER_BASE_URL" default:"https://api.openweathermap.org/data/2.5"`
	Units      string        `envconfig:"WEATHER_UNITS" default:"metric"`
	Lang       string        `envconfig:"WEATHER_LANG" default:"en"`
	RateLimit  float64       `envconfig:"WEATHER_RATE_LIMIT" default:"5"`
	Timeout    time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
	MaxRetries int           `envconfig:"WEATHER_MAX_RETRIES" default:"2"`
}

// StoreConfig selects the subscriber persistence backend
type StoreConfig struct {
	Driver     string `envconfig:"STORE_DRIVER" default:"json"`
	Path       string `envconfig:"STORE_PATH" default:"users.json"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"./data/subscribers.db"`
}

// DBConfig holds MySQL configuration, used when STORE_DRIVER=mysql
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"3306"`
	User     string `envconfig:"DB_USER" default:"root"`
	Password string `envconfig:"DB_PASSWORD"`
	Database string `envconfig:"DB_NAME" default:"weather_bot"`
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"10"`
}

// SchedulerConfig holds notification scheduler configuration.
// Broadcasts are cron specs: the first one is the midday broadcast, the second the evening one.
type SchedulerConfig struct {
	Enabled      bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
	TickInterval time.Duration `envconfig:"SCHEDULER_TICK" default:"1m"`
	Broadcasts   []string      `envconfig:"SCHEDULER_BROADCASTS" default:"0 12 * * *,0 18 * * *"`
	FetchTimeout time.Duration `envconfig:"SCHEDULER_FETCH_TIMEOUT" default:"15s"`
	Concurrency  int           `envconfig:"SCHEDULER_CONCURRENCY" default:"4"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int `envconfig:"SERVER_PORT" default:"8080"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// DSN returns the MySQL data source name
func (c *DBConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg.Bot); err != nil {
		return nil, fmt.Errorf("failed to load bot config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Weather); err != nil {
		return nil, fmt.Errorf("failed to load weather config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Store); err != nil {
		return nil, fmt.Errorf("failed to load store config: %w", err)
	}

	if err := envconfig.Process("", &cfg.DB); err != nil {
		return nil, fmt.Errorf("failed to load db config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Scheduler); err != nil {
		return nil, fmt.Errorf("failed to load scheduler config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Server); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}

	if err := envconfig.Process("", &cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to load log config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Weather.APIKey == "" {
		return fmt.Errorf("WEATHER_API_KEY is required")
	}
	if c.Weather.RateLimit <= 0 {
		return fmt.Errorf("WEATHER_RATE_LIMIT must be positive")
	}
	switch c.Store.Driver {
	case DriverJSON:
		if c.Store.Path == "" {
			return fmt.Errorf("STORE_PATH is required for the json driver")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverMySQL:
		if c.DB.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for the mysql driver")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of json, sqlite, mysql")
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("SCHEDULER_TICK must be positive")
	}
	if c.Scheduler.FetchTimeout <= 0 {
		return fmt.Errorf("SCHEDULER_FETCH_TIMEOUT must be positive")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("SCHEDULER_CONCURRENCY must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	return nil
}
