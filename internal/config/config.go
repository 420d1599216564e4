package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the chat service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	JWTSecret        string
	AllowGuests     bool
	HistoryLimit    int
	DefaultCapacity int
	RetentionDays   int
	WriteTimeout    time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Realtime Chat API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("allow_guests", true)
	v.SetDefault("history.limit", 50)
	v.SetDefault("room.capacity", 100)
	v.SetDefault("room.retention_days", 30)
	v.SetDefault("write_timeout", "10s")

	writeTimeout, err := time.ParseDuration(v.GetString("write_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid write timeout: %w", err)
	}

	cfg := Config{
		AppName:         v.GetString("app.name"),
		AppEnv:          v.GetString("app.env"),
		AppPort:         v.GetString("app.port"),
		DatabaseURL:     v.GetString("database.url"),
		RedisURL:        v.GetString("redis.url"),
		NATSURL:         v.GetString("nats.url"),
		JWTSecret:       v.GetString("jwt.secret"),
		AllowGuests:     v.GetBool("allow_guests"),
		HistoryLimit:    v.GetInt("history.limit"),
		DefaultCapacity: v.GetInt("room.capacity"),
		RetentionDays:   v.GetInt("room.retention_days"),
		WriteTimeout:    writeTimeout,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}

	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = 100
	}

	return cfg, nil
}
