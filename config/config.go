/*
config.go - Server configuration

PURPOSE:
  Collects every runtime setting of the ledger server in one struct.

SOURCES (highest priority first):
  1. Command-line flags (-port, -db), applied by cmd/server
  2. Environment variables with LEDGER_ prefix (LEDGER_HTTP_PORT, ...)
  3. .env file in the working directory (loaded into the environment)
  4. config.toml in ".", "./config" or "/etc/shop-ledger"
  5. Built-in defaults
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Database DatabaseConfig
	Log      LogConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Refresh  RefreshConfig
	Snapshot SnapshotConfig
	Display  DisplayConfig
}

type AppConfig struct {
	Env string // development, production
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Path string // SQLite file, or ":memory:"
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AuthConfig controls bearer-token owner identification. With auth
// disabled the owner comes from the X-Owner-ID header (development only).
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Channel  string
}

type RefreshConfig struct {
	Debounce time.Duration
}

type SnapshotConfig struct {
	Enabled bool
	Cron    string
}

type DisplayConfig struct {
	Timezone string
	Language string // ar, en
}

// Load reads configuration from .env, config.toml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/shop-ledger")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env: v.GetString("app.env"),
		},
		HTTP: HTTPConfig{
			Port:         v.GetInt("http.port"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Auth: AuthConfig{
			Enabled:   v.GetBool("auth.enabled"),
			JWTSecret: v.GetString("auth.jwt_secret"),
			Issuer:    v.GetString("auth.issuer"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
		Refresh: RefreshConfig{
			Debounce: v.GetDuration("refresh.debounce"),
		},
		Snapshot: SnapshotConfig{
			Enabled: v.GetBool("snapshot.enabled"),
			Cron:    v.GetString("snapshot.cron"),
		},
		Display: DisplayConfig{
			Timezone: v.GetString("display.timezone"),
			Language: v.GetString("display.language"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("database.path", "ledger.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "shop-ledger:refresh")
	v.SetDefault("refresh.debounce", 250*time.Millisecond)
	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("snapshot.cron", "@every 15m")
	v.SetDefault("display.timezone", "Asia/Aden")
	v.SetDefault("display.language", "ar")
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.Enabled && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters when auth is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Refresh.Debounce < 0 {
		return fmt.Errorf("refresh.debounce must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("display.timezone: %w", err)
	}
	return nil
}

// Location is the display time zone for grouping and rendering dates.
func (c *Config) Location() (*time.Location, error) {
	if c.Display.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Display.Timezone)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
