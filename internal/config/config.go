// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Драйверы хранилища.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config общая структура для хранения настроек
type Config struct {
	Env         string   `yaml:"env" env:"ENV" env-default:"local"`
	GRPCAddress string   `yaml:"grpc_address" env:"GRPC_ADDRESS" env-default:":50051"`
	Storage     Storage  `yaml:"storage"`
	RabbitMQ    RabbitMQ `yaml:"rabbitmq"`
	SMTP        SMTP     `yaml:"smtp"`
	Sweeper     Sweeper  `yaml:"sweeper"`
	Admin       Admin    `yaml:"admin"`

	HTTPServer      `yaml:"http_server"`
	RedisConnection `yaml:"redis_connection"`
	JWTToken        `yaml:"jwttoken"`
}

// Storage структура для настройки хранилища
type Storage struct {
	Driver         string        `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	DSN            string        `yaml:"dsn" env:"STORAGE_DSN"`
	Timeout        time.Duration `yaml:"timeout" env:"STORAGE_TIMEOUT" env-default:"5s"`
	MigrationsPath string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RunMigrations  bool          `yaml:"run_migrations" env:"RUN_MIGRATIONS"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кеш.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db" env-default:"0"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
	CacheTTL     time.Duration `yaml:"ttl" env-default:"5m"`
}

// RabbitMQ структура для подключения к брокеру. Пустой URL отключает уведомления.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	Retries    int           `yaml:"retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// SMTP структура для отправки писем. SkipTLS отключает STARTTLS
// для локальных почтовых серверов.
type SMTP struct {
	Host     string  `yaml:"host" env:"SMTP_HOST"`
	Port     string  `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string  `yaml:"user" env:"SMTP_USER"`
	Password string  `yaml:"password" env:"SMTP_PASSWORD"`
	From     string  `yaml:"from" env:"SMTP_FROM"`
	SkipTLS  bool    `yaml:"skip_tls"`
	Rate     float64 `yaml:"rate_per_second" env-default:"1"`
	Burst    int     `yaml:"burst" env-default:"5"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Sweeper структура для настройки очистки истёкших подписок
type Sweeper struct {
	Timezone   string `yaml:"timezone" env:"SWEEPER_TIMEZONE" env-default:"Europe/Budapest"`
	RunOnStart bool   `yaml:"run_on_start"`
	Embedded   bool   `yaml:"embedded" env:"SWEEPER_EMBEDDED" env-default:"false"`
}

// Admin описывает учётную запись администратора, создаваемую при старте.
// Пустой e-mail отключает создание.
type Admin struct {
	Name     string `yaml:"name" env-default:"admin"`
	Email    string `yaml:"email" env:"ADMIN_EMAIL"`
	Password string `yaml:"password" env:"ADMIN_PASSWORD"`
}

// MustLoad функция для загрузки конфига из файла CONFIG_PATH, завершает процесс при ошибке
func MustLoad() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("cannot load .env: %s", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг из файла path с переопределением переменными окружения
// и проверяет его.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: file %s: %w", op, path, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.JWTSecretKey == "" {
		return errors.New("jwttoken.jwt_secret_key is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location возвращает часовой пояс, в котором отсчитывается полночь очистки.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Sweeper.Timezone)
	if err != nil {
		return nil, fmt.Errorf("sweeper.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  Driver: %s\n"+
			"  Timeout: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"GRPCAddress: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"  TTL: %s\n"+
			"RabbitMQ enabled: %t\n"+
			"SMTP host: %s\n"+
			"Sweeper:\n"+
			"  Timezone: %s\n"+
			"  Embedded: %t\n",
		c.Env,
		c.Storage.Driver,
		c.Storage.Timeout,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.GRPCAddress,
		c.AddressRedis,
		c.DB,
		c.CacheTTL,
		c.RabbitMQ.URL != "",
		c.SMTP.Host,
		c.Sweeper.Timezone,
		c.Sweeper.Embedded,
	)
}
