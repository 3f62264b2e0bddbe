package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	API      APIConfig      `mapstructure:"api"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Breeds   BreedsConfig   `mapstructure:"breeds"`
	Dogs     DogsConfig     `mapstructure:"dogs"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type TelegramConfig struct {
	Token   string `mapstructure:"token" validate:"required"`
	Timeout int    `mapstructure:"timeout" validate:"gte=1"`
}

type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"required"`
	RateLimit float64       `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int           `mapstructure:"burst" validate:"gte=1"`
}

type RedisConfig struct {
	Address  string        `mapstructure:"address" validate:"required,hostname_port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl" validate:"required"`
}

type BreedsConfig struct {
	Cache struct {
		TTL time.Duration `mapstructure:"ttl" validate:"required"`
	} `mapstructure:"cache"`
}

type DogsConfig struct {
	Photos        bool          `mapstructure:"photos"`
	PhotoTimeout  time.Duration `mapstructure:"photo_timeout" validate:"required"`
	PhotoCacheTTL time.Duration `mapstructure:"photo_cache_ttl" validate:"required"`
}

type MetricsConfig struct {
	// Empty disables the metrics listener.
	Address string `mapstructure:"address" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.timeout", 60)
	v.SetDefault("api.base_url", "https://frontend-take-home-service.fetch.com")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.burst", 10)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)
	v.SetDefault("breeds.cache.ttl", time.Hour)
	v.SetDefault("dogs.photos", true)
	v.SetDefault("dogs.photo_timeout", 10*time.Second)
	v.SetDefault("dogs.photo_cache_ttl", time.Hour)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("log.level", "info")
}

// Load reads the yaml file at path on top of the defaults. Variables from
// envFiles are loaded into the environment first; missing files are skipped.
// Any key can be overridden with DOGFINDER_<SECTION>_<KEY>, the bot token
// also with TELEGRAM_TOKEN.
func Load(path string, envFiles ...string) (*Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", file, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yml")
	v.SetEnvPrefix("dogfinder")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("telegram.token", "DOGFINDER_TELEGRAM_TOKEN", "TELEGRAM_TOKEN"); err != nil {
		return nil, fmt.Errorf("bind telegram token: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
