package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/camisetas/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/camisetas/internal/service/orders"
	"github.com/vladislavdragonenkov/camisetas/internal/service/outbox"
	"github.com/vladislavdragonenkov/camisetas/internal/telemetry"
	"github.com/vladislavdragonenkov/camisetas/internal/transport/httpapi"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"
)

const serviceName = "camisetas"

// StorageConfig выбирает хранилище и параметры подключения к нему.
type StorageConfig struct {
	Driver              string
	PostgresDSN         string
	PostgresAutoMigrate bool
	MongoURI            string
	MongoDatabase       string
}

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	// GRPCAddr: адрес gRPC health-сервера; пустое значение его отключает.
	GRPCAddr string

	Storage     StorageConfig
	CORSOrigins []string

	KafkaBrokers []string
	KafkaTopic   string

	Orders  orders.Config
	Outbox  outbox.Config
	Tracing telemetry.Config
}

// DefaultConfig возвращает конфигурацию для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":5000",
		MetricsAddr: ":9090",
		GRPCAddr:    "",
		Storage: StorageConfig{
			Driver:              StorageDriverMemory,
			PostgresAutoMigrate: true,
			MongoDatabase:       "camisetas",
		},
		CORSOrigins: append([]string(nil), httpapi.DefaultCORSOrigins...),
		KafkaTopic:  kafka.TopicOrderEvents,
		Orders:      orders.DefaultConfig(),
		Outbox:      outbox.DefaultConfig(),
		Tracing: telemetry.Config{
			ServiceName: serviceName,
			SampleRatio: 1,
		},
	}
}

// Validate проверяет согласованность настроек перед запуском.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("http address is required")
	}

	switch c.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return errors.New("postgres storage requires a DSN")
		}
	case StorageDriverMongo:
		if strings.TrimSpace(c.Storage.MongoURI) == "" {
			return errors.New("mongo storage requires a URI")
		}
		if strings.TrimSpace(c.Storage.MongoDatabase) == "" {
			return errors.New("mongo storage requires a database name")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// ParseList разбивает значение вида "a, b,,c" на непустые элементы.
func ParseList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
