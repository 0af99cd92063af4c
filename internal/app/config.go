package app

import (
	"os"
	"time"
)

// Config описывает настройки запуска сервиса заказов.
type Config struct {
	// HTTPAddr — адрес основного API.
	HTTPAddr string
	// MetricsAddr — адрес служебного сервера с /metrics и health-пробами.
	MetricsAddr string
	// PostgresDSN — строка подключения к Postgres; при пустом значении
	// используется in-memory хранилище.
	PostgresDSN string
	// KafkaBrokers — список брокеров через запятую; при пустом значении
	// события не публикуются наружу, outbox копит backlog.
	KafkaBrokers string
	// RedisAddr — адрес Redis для кеша сводок; при пустом значении
	// используется in-memory кеш.
	RedisAddr string
	// JWTSecret — ключ проверки подписи токенов доступа.
	JWTSecret string
	// ShutdownTimeout ограничивает graceful shutdown HTTP-серверов.
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9090",
		JWTSecret:       "dev-secret",
		ShutdownTimeout: 5 * time.Second,
	}
}

// ConfigFromEnv читает конфигурацию из окружения поверх дефолтов.
// Все переменные используют префикс SHOP_.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("SHOP_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SHOP_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("SHOP_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("SHOP_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = v
	}
	if v := os.Getenv("SHOP_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("SHOP_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("SHOP_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ShutdownTimeout = d
		}
	}

	return cfg
}
