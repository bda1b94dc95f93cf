package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/camisetas/internal/app"
	"github.com/vladislavdragonenkov/camisetas/internal/version"
)

const (
	envPort                = "PORT"
	envMetricsAddr         = "SHOP_METRICS_ADDR"
	envGRPCAddr            = "SHOP_GRPC_ADDR"
	envStorageDriver       = "SHOP_STORAGE_DRIVER"
	envMongoURI            = "MONGO_URI"
	envMongoDatabase       = "MONGO_DATABASE"
	envPostgresDSN         = "SHOP_POSTGRES_DSN"
	envPostgresAutoMigrate = "SHOP_POSTGRES_AUTO_MIGRATE"
	envCORSOrigins         = "SHOP_CORS_ORIGINS"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envKafkaTopic          = "SHOP_KAFKA_TOPIC"
	envOutboxPollInterval  = "SHOP_OUTBOX_POLL_INTERVAL"
	envSequenceMaxAttempts = "SHOP_SEQUENCE_MAX_ATTEMPTS"
	envShippingFee         = "SHOP_SHIPPING_FEE"
	envOTLPEndpoint        = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envLogLevel            = "SHOP_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не ломают запуск: остаётся значение по умолчанию, а в warnings попадает причина.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
	}
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}

	if v, ok := get(envPort); ok {
		cfg.HTTPAddr = listenAddr(v)
	}
	if v, ok := get(envMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := get(envGRPCAddr); ok {
		cfg.GRPCAddr = v
	}

	if v, ok := get(envMongoURI); ok {
		cfg.Storage.MongoURI = v
		cfg.Storage.Driver = app.StorageDriverMongo
	}
	if v, ok := get(envMongoDatabase); ok {
		cfg.Storage.MongoDatabase = v
	}
	if v, ok := get(envStorageDriver); ok {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := get(envPostgresDSN); ok {
		cfg.Storage.PostgresDSN = v
	}
	if v, ok := get(envPostgresAutoMigrate); ok {
		parsed, err := parseBool(v)
		if err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.Storage.PostgresAutoMigrate = parsed
		}
	}

	if v, ok := get(envCORSOrigins); ok {
		if origins := app.ParseList(v); len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}
	if v, ok := get(envKafkaBrokers); ok {
		cfg.KafkaBrokers = app.ParseList(v)
	}
	if v, ok := get(envKafkaTopic); ok {
		cfg.KafkaTopic = v
	}
	if v, ok := get(envOutboxPollInterval); ok {
		parsed, err := parseDuration(v, func(d time.Duration) bool { return d > 0 }, "must be > 0")
		if err != nil {
			warn(envOutboxPollInterval, err)
		} else {
			cfg.Outbox.PollInterval = parsed
		}
	}
	if v, ok := get(envSequenceMaxAttempts); ok {
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(envSequenceMaxAttempts, err)
		} else {
			cfg.Orders.Retry.MaxAttempts = parsed
		}
	}
	if v, ok := get(envShippingFee); ok {
		parsed, err := parseFloat(v, func(f float64) bool { return f >= 0 }, "must be >= 0")
		if err != nil {
			warn(envShippingFee, err)
		} else {
			cfg.Orders.ShippingFee = parsed
		}
	}
	if v, ok := get(envOTLPEndpoint); ok {
		cfg.Tracing.Endpoint = v
	}

	return cfg, warnings
}

// listenAddr превращает "5000" в ":5000", полный адрес оставляет как есть.
func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("invalid value %d: %s", value, rule)
	}
	return value, nil
}

func parseFloat(raw string, valid func(float64) bool, rule string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("invalid value %v: %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("invalid duration %s: %s", value, rule)
	}
	return value, nil
}

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("не удалось прочитать .env")
	}
	setupLogger(os.Getenv(envLogLevel))
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warn("некорректная переменная окружения, используем значение по умолчанию: " + w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"storage":      cfg.Storage.Driver,
		"build":        version.String(),
	}).Info("запускаем shop-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("shop-service остановлен")
}
