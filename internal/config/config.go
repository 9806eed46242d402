package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type GroupSeed struct {
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

type Config struct {
	Server struct {
		Port         string        `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Feed struct {
		PageSize int `yaml:"page_size"`
	} `yaml:"feed"`
	Cache struct {
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"cache"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Groups []GroupSeed `yaml:"groups"`
}

// Default возвращает конфигурацию, с которой сервер стартует без файла.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Mongo.URI = "mongodb://localhost:27017"
	cfg.Mongo.Database = "blog"
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Feed.PageSize = 10
	cfg.Cache.TTL = 20 * time.Second
	cfg.Cache.SweepInterval = time.Minute
	cfg.Log.Level = "info"
	return cfg
}

// Load читает YAML-файл поверх значений по умолчанию, затем применяет
// переменные окружения BLOG_* (в том числе из .env). Отсутствующий файл не ошибка.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("не удалось прочитать конфигурацию: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("не удалось разобрать конфигурацию: %w", err)
		}
	}

	// .env не перекрывает уже заданные переменные окружения
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("не удалось прочитать .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) error {
		v, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	setString("BLOG_PORT", &c.Server.Port)
	setString("BLOG_POSTGRES_DSN", &c.Postgres.DSN)
	setString("BLOG_MONGO_URI", &c.Mongo.URI)
	setString("BLOG_MONGO_DATABASE", &c.Mongo.Database)
	setString("BLOG_JWT_SECRET", &c.Auth.JWTSecret)
	setString("BLOG_LOG_LEVEL", &c.Log.Level)

	if v, ok := os.LookupEnv("BLOG_PAGE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BLOG_PAGE_SIZE: %w", err)
		}
		c.Feed.PageSize = n
	}
	if err := setDuration("BLOG_CACHE_TTL", &c.Cache.TTL); err != nil {
		return err
	}
	return setDuration("BLOG_TOKEN_TTL", &c.Auth.TokenTTL)
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("не задан порт сервера")
	}
	if c.Feed.PageSize <= 0 {
		return fmt.Errorf("некорректный размер страницы: %d", c.Feed.PageSize)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("некорректный TTL кэша: %s", c.Cache.TTL)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("не задан auth.jwt_secret (BLOG_JWT_SECRET)")
	}
	return nil
}
