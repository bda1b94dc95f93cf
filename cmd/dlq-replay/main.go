// Command dlq-replay возвращает события заказов из DLQ в основной топик.
// По умолчанию работает в режиме dry-run и только логирует кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/camisetas/internal/app"
	"github.com/vladislavdragonenkov/camisetas/internal/messaging/kafka"
)

const (
	defaultLimit       = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

// deadLetter: тело DLQ-сообщения, которое пишет outbox worker.
type deadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

type offsetClient interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type consumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// eventSender реализует *kafka.Producer.
type eventSender interface {
	Send(ctx context.Context, topic, key string, value any, headers map[string]string) error
}

type saramaConsumer struct {
	consumer sarama.Consumer
}

func (c saramaConsumer) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return c.consumer.ConsumePartition(topic, partition, offset)
}

func (c saramaConsumer) Close() error {
	return c.consumer.Close()
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg        config
		brokersRaw string
	)

	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic to replay order events into")
	fs.IntVar(&cfg.limit, "limit", defaultLimit, "max number of DLQ messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish events; default is dry-run")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv("KAFKA_BROKERS")
	}
	cfg.brokers = app.ParseList(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, errors.New("target-topic is required")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be > 0")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config) (replayStats, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return replayStats{}, fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return replayStats{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaConsumer{consumer: consumer}
	defer source.Close()

	var sender eventSender
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers, log.WithField("component", "dlq-replay"))
		if err != nil {
			return replayStats{}, err
		}
		defer producer.Close()
		sender = producer
	}

	return replay(ctx, cfg, client, source, sender)
}

func replay(ctx context.Context, cfg config, client offsetClient, source consumerSource, sender eventSender) (replayStats, error) {
	var total replayStats
	if cfg.execute && sender == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}
		stats, err := replayPartition(ctx, cfg, client, source, sender, partition, cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	log.WithFields(log.Fields{
		"execute":   cfg.execute,
		"processed": total.processed,
		"replayed":  total.replayed,
		"skipped":   total.skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func replayPartition(
	ctx context.Context,
	cfg config,
	client offsetClient,
	source consumerSource,
	sender eventSender,
	partition int32,
	limit int,
) (replayStats, error) {
	var stats replayStats

	oldest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	pc, err := source.ConsumePartition(cfg.sourceTopic, partition, oldest)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer pc.Close()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(cfg.idleTimeout)
			stats.processed++

			entry := log.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})
			event, err := decodeDeadLetter(msg.Value)
			if err != nil {
				stats.skipped++
				entry.WithError(err).Warn("skip unsupported dlq message")
				if msg.Offset+1 >= newest {
					return stats, nil
				}
				continue
			}

			entry = entry.WithFields(log.Fields{
				"event_type":   event.EventType,
				"order_number": event.AggregateID,
			})
			if cfg.execute {
				if err := sender.Send(ctx, cfg.targetTopic, event.Key(), event, map[string]string{
					kafka.HeaderEventType:   event.EventType,
					kafka.HeaderAggregateID: event.AggregateID,
				}); err != nil {
					return stats, fmt.Errorf("replay outbox event %s: %w", event.ID, err)
				}
				entry.Info("order event replayed")
			} else {
				entry.Info("dlq replay candidate")
			}
			stats.replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// decodeDeadLetter восстанавливает исходный конверт события из DLQ-сообщения.
func decodeDeadLetter(raw []byte) (kafka.Envelope, error) {
	var wrapper kafka.Envelope
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return kafka.Envelope{}, fmt.Errorf("decode dlq envelope: %w", err)
	}

	var letter deadLetter
	if err := json.Unmarshal(wrapper.Payload, &letter); err != nil {
		return kafka.Envelope{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(letter.Payload) == 0 || string(letter.Payload) == "null" {
		return kafka.Envelope{}, errors.New("dead letter has no original payload")
	}

	return kafka.Envelope{
		ID:            firstNonEmpty(letter.OutboxID, wrapper.ID),
		AggregateType: firstNonEmpty(letter.AggregateType, wrapper.AggregateType),
		AggregateID:   firstNonEmpty(letter.AggregateID, wrapper.AggregateID),
		EventType:     firstNonEmpty(letter.EventType, wrapper.EventType),
		Payload:       letter.Payload,
		OccurredAt:    wrapper.OccurredAt,
		PublishedAt:   time.Now().UTC(),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
