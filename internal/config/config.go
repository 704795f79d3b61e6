// Package config предоставялет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"DATABASE_URL" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	Database                `yaml:"database"`
	HTTPServer              `yaml:"http_server"`
	GRPCServer              `yaml:"grpc_server"`
	JWTToken                `yaml:"jwttoken"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	Stripe                  `yaml:"stripe"`
	Licensing               `yaml:"licensing"`
}

// Database структура для настройки пула соединений
type Database struct {
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":3001"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env:"HTTP_TIMEOUT" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

// GRPCServer структура для настройки gRPC сервера проверки здоровья
type GRPCServer struct {
	AddressGRPC string `yaml:"addressgrpc" env:"GRPC_ADDRESS" env-default:":50051"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET" env-required:"true"`
	TokenTTL     time.Duration `yaml:"token_ttl" env:"JWT_TOKEN_TTL" env-default:"168h"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кэш обработанных событий.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	MaxRetries   int           `yaml:"max_retries" env:"REDIS_MAX_RETRIES" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env:"REDIS_TIMEOUT" env-default:"2s"`
	EventTTL     time.Duration `yaml:"event_ttl" env:"REDIS_EVENT_TTL" env-default:"24h"`
}

// RabbitMQ структура для настройки публикации уведомлений.
// Пустой URL отключает публикацию.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env:"RABBITMQ_MAX_RETRIES" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env:"RABBITMQ_RETRY_DELAY" env-default:"2s"`
}

// Stripe структура для работы с платежным провайдером
type Stripe struct {
	SecretKey     string            `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret string            `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET" env-required:"true"`
	SuccessURL    string            `yaml:"success_url" env:"STRIPE_SUCCESS_URL" env-default:"http://localhost:3000/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL     string            `yaml:"cancel_url" env:"STRIPE_CANCEL_URL" env-default:"http://localhost:3000/cancel"`
	PricePlans    map[string]string `yaml:"price_plans"`
}

// Licensing структура для настроек проверки лицензий
type Licensing struct {
	HWIDKey       string  `yaml:"hwid_key" env:"LICENSE_HWID_KEY" env-required:"true"`
	MaxDevices    int     `yaml:"max_devices" env:"LICENSE_MAX_DEVICES" env-default:"3"`
	ValidateRPS   float64 `yaml:"validate_rps" env:"LICENSE_VALIDATE_RPS" env-default:"5"`
	ValidateBurst int     `yaml:"validate_burst" env:"LICENSE_VALIDATE_BURST" env-default:"10"`
}

// MustLoad загружает конфиг по пути из переменной окружения CONFIG_PATH.
func MustLoad() *Config {
	return MustLoadPath(os.Getenv("CONFIG_PATH"))
}

// MustLoadPath загружает конфиг по указанному пути и завершает процесс при ошибке.
func MustLoadPath(configPath string) *Config {
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает YAML-конфиг и переменные окружения.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.MaxDevices <= 0 {
		return nil, fmt.Errorf("%s: licensing.max_devices must be positive", op)
	}
	return &cfg, nil
}

// String печатает конфиг без секретов.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"GRPCServer:\n"+
			"  Address: %s\n"+
			"Database:\n"+
			"  MaxOpenConns: %d\n"+
			"  MaxIdleConns: %d\n"+
			"Redis:\n"+
			"  Addr: %s\n"+
			"  DB: %d\n"+
			"RabbitMQ enabled: %t\n"+
			"Licensing:\n"+
			"  MaxDevices: %d\n"+
			"JWTToken:\n"+
			"  TokenTTL: %s\n",
		c.Env,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.AddressGRPC,
		c.MaxOpenConns,
		c.MaxIdleConns,
		c.AddressRedis,
		c.DB,
		c.RabbitMQURL != "",
		c.MaxDevices,
		c.TokenTTL,
	)
}
