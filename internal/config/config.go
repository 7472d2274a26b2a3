package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/JHils/phile-gate-whispers-sub003/internal/eco"
	"github.com/JHils/phile-gate-whispers-sub003/internal/logging"
	"github.com/JHils/phile-gate-whispers-sub003/internal/storage"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Storage       string `env:"WHISPERS_STORAGE" envDefault:"file"`
	StoragePath   string `env:"WHISPERS_STORAGE_PATH" envDefault:"whispers.json"`
	BackupCount   int    `env:"WHISPERS_BACKUPS" envDefault:"3"`
	RedisAddr     string `env:"WHISPERS_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"WHISPERS_REDIS_PASSWORD"`
	RedisDB       int    `env:"WHISPERS_REDIS_DB"`
	RedisPrefix   string `env:"WHISPERS_REDIS_PREFIX" envDefault:"whispers"`

	TuningPath string `env:"WHISPERS_TUNING"`

	LogLevel string `env:"WHISPERS_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"WHISPERS_LOG_FILE"`
	LogJSON  bool   `env:"WHISPERS_LOG_JSON"`

	Seed int64         `env:"WHISPERS_SEED"`
	Tick time.Duration `env:"WHISPERS_TICK" envDefault:"1s"`

	WeatherEnabled bool    `env:"WHISPERS_WEATHER_ENABLED"`
	WeatherURL     string  `env:"WHISPERS_WEATHER_URL" envDefault:"https://api.open-meteo.com/v1/forecast"`
	Latitude       float64 `env:"WHISPERS_LATITUDE" envDefault:"-33.8688"`
	Longitude      float64 `env:"WHISPERS_LONGITUDE" envDefault:"151.2093"`
}

// Load reads .env files (a missing file is fine) and parses the environment.
// Variables already set in the environment win over .env entries.
func Load(dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Kind:        c.Storage,
		Path:        c.StoragePath,
		BackupCount: c.BackupCount,
		RedisAddr:   c.RedisAddr,
		RedisPass:   c.RedisPassword,
		RedisDB:     c.RedisDB,
		Prefix:      c.RedisPrefix,
	}
}

func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{Level: c.LogLevel, File: c.LogFile, JSON: c.LogJSON}
}

func (c *Config) WeatherConfig() eco.OpenMeteoConfig {
	return eco.OpenMeteoConfig{
		Endpoint:  c.WeatherURL,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
	}
}
