package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_WithRequiredEnvVars(t *testing.T) {
	// Set required environment variables
	os.Setenv("BOT_TOKEN", "test-token-123")
	os.Setenv("WEATHER_API_KEY", "test-key")
	defer func() {
		os.Unsetenv("BOT_TOKEN")
		os.Unsetenv("WEATHER_API_KEY")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bot.Token != "test-token-123" {
		t.Errorf("Bot.Token = %v, want %v", cfg.Bot.Token, "test-token-123")
	}
	if cfg.Weather.APIKey != "test-key" {
		t.Errorf("Weather.APIKey = %v, want %v", cfg.Weather.APIKey, "test-key")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	os.Setenv("BOT_TOKEN", "test-token")
	os.Setenv("WEATHER_API_KEY", "test-key")
	defer func() {
		os.Unsetenv("BOT_TOKEN")
		os.Unsetenv("WEATHER_API_KEY")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Weather defaults
	if cfg.Weather.Units != "metric" {
		t.Errorf("Weather.Units = %v, want %v", cfg.Weather.Units, "metric")
	}
	if cfg.Weather.Timeout != 10*time.Second {
		t.Errorf("Weather.Timeout = %v, want %v", cfg.Weather.Timeout, 10*time.Second)
	}
	if cfg.Weather.MaxRetries != 2 {
		t.Errorf("Weather.MaxRetries = %v, want %v", cfg.Weather.MaxRetries, 2)
	}

	// Store defaults
	if cfg.Store.Driver != DriverJSON {
		t.Errorf("Store.Driver = %v, want %v", cfg.Store.Driver, DriverJSON)
	}
	if cfg.Store.Path != "users.json" {
		t.Errorf("Store.Path = %v, want %v", cfg.Store.Path, "users.json")
	}

	// DB defaults
	if cfg.DB.Port != 3306 {
		t.Errorf("DB.Port = %v, want %v", cfg.DB.Port, 3306)
	}
	if cfg.DB.Database != "weather_bot" {
		t.Errorf("DB.Database = %v, want %v", cfg.DB.Database, "weather_bot")
	}

	// Scheduler defaults
	if !cfg.Scheduler.Enabled {
		t.Errorf("Scheduler.Enabled = %v, want %v", cfg.Scheduler.Enabled, true)
	}
	if cfg.Scheduler.TickInterval != time.Minute {
		t.Errorf("Scheduler.TickInterval = %v, want %v", cfg.Scheduler.TickInterval, time.Minute)
	}
	if len(cfg.Scheduler.Broadcasts) != 2 ||
		cfg.Scheduler.Broadcasts[0] != "0 12 * * *" ||
		cfg.Scheduler.Broadcasts[1] != "0 18 * * *" {
		t.Errorf("Scheduler.Broadcasts = %q, want midday and evening specs", cfg.Scheduler.Broadcasts)
	}
	if cfg.Scheduler.FetchTimeout != 15*time.Second {
		t.Errorf("Scheduler.FetchTimeout = %v, want %v", cfg.Scheduler.FetchTimeout, 15*time.Second)
	}
	if cfg.Scheduler.Concurrency != 4 {
		t.Errorf("Scheduler.Concurrency = %v, want %v", cfg.Scheduler.Concurrency, 4)
	}

	// Server and log defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, 8080)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %v, want %v", cfg.Log.Level, "info")
	}
}

func TestLoad_MissingBotToken(t *testing.T) {
	os.Unsetenv("BOT_TOKEN")
	os.Setenv("WEATHER_API_KEY", "test-key")
	defer os.Unsetenv("WEATHER_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing BOT_TOKEN, got nil")
	}
}

func TestLoad_MissingWeatherKey(t *testing.T) {
	os.Setenv("BOT_TOKEN", "test-token")
	os.Unsetenv("WEATHER_API_KEY")
	defer os.Unsetenv("BOT_TOKEN")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for missing WEATHER_API_KEY, got nil")
	}
}

func validConfig() Config {
	return Config{
		Bot:     BotConfig{Token: "token"},
		Weather: WeatherConfig{APIKey: "key", RateLimit: 5},
		Store:   StoreConfig{Driver: DriverJSON, Path: "users.json"},
		Scheduler: SchedulerConfig{
			TickInterval: time.Minute,
			FetchTimeout: time.Second,
			Concurrency:  1,
		},
		Server: ServerConfig{Port: 8080},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing bot token", mutate: func(c *Config) { c.Bot.Token = "" }, wantErr: true},
		{name: "missing weather key", mutate: func(c *Config) { c.Weather.APIKey = "" }, wantErr: true},
		{name: "invalid rate limit", mutate: func(c *Config) { c.Weather.RateLimit = 0 }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "redis" }, wantErr: true},
		{name: "json without path", mutate: func(c *Config) { c.Store.Path = "" }, wantErr: true},
		{
			name: "sqlite driver",
			mutate: func(c *Config) {
				c.Store.Driver = DriverSQLite
				c.Store.SQLitePath = "data/subscribers.db"
			},
			wantErr: false,
		},
		{name: "mysql without password", mutate: func(c *Config) { c.Store.Driver = DriverMySQL }, wantErr: true},
		{
			name: "mysql with password",
			mutate: func(c *Config) {
				c.Store.Driver = DriverMySQL
				c.DB.Password = "secret"
			},
			wantErr: false,
		},
		{name: "zero tick", mutate: func(c *Config) { c.Scheduler.TickInterval = 0 }, wantErr: true},
		{name: "zero fetch timeout", mutate: func(c *Config) { c.Scheduler.FetchTimeout = 0 }, wantErr: true},
		{name: "invalid concurrency", mutate: func(c *Config) { c.Scheduler.Concurrency = 0 }, wantErr: true},
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDBConfig_DSN(t *testing.T) {
	cfg := DBConfig{
		Host:     "localhost",
		Port:     3306,
		User:     "root",
		Password: "secret",
		Database: "testdb",
	}

	expected := "root:secret@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	if got := cfg.DSN(); got != expected {
		t.Errorf("DSN() = %v, want %v", got, expected)
	}
}
