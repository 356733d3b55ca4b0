package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/agrilink/agrilink/internal/config"
)

// Message is a message consumed from the bus.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
	Offset  int64
	Time    time.Time
}

// Handler processes an inbound message. A non-nil error leaves the
// offset uncommitted so the message is retried.
type Handler func(context.Context, Message) error

// Client is the pluggable messaging abstraction.
type Client interface {
	Publish(ctx context.Context, key []byte, value []byte) error
	Consume(ctx context.Context, handler Handler) error
	Topic() string
}

// Module wires the messaging client.
var Module = fx.Provide(NewClient)

// NewClient builds a bus client from config. With messaging disabled the
// noop client swallows publishes, so event fan-out still works in-process.
func NewClient(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Client, error) {
	if !cfg.Messaging.Enabled || cfg.Messaging.Driver == "noop" {
		logger.Info("messaging disabled; using noop client")
		return noopClient{topic: cfg.Messaging.Kafka.Topic}, nil
	}
	if cfg.Messaging.Driver != "kafka" {
		return nil, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}
	return dialKafka(lc, cfg.Messaging, logger), nil
}

type noopClient struct {
	topic string
}

func (noopClient) Publish(context.Context, []byte, []byte) error { return nil }

func (noopClient) Consume(ctx context.Context, _ Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n noopClient) Topic() string { return n.topic }

// kafkaClient journals events through kafka-go. Messages are keyed by
// event type, so the Hash balancer keeps each type's ordering per partition.
type kafkaClient struct {
	writer *kafka.Writer
	reader *kafka.Reader
	topic  string
	logger *zap.Logger
}

func dialKafka(lc fx.Lifecycle, cfg config.Messaging, logger *zap.Logger) *kafkaClient {
	c := &kafkaClient{
		topic:  cfg.Kafka.Topic,
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			ErrorLogger:  kafkaLogger{logger: logger},
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			GroupID:        cfg.ConsumerGroup,
			Topic:          cfg.Kafka.Topic,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: cfg.Kafka.CommitInterval,
			Dialer: &kafka.Dialer{
				Timeout:  cfg.Kafka.ConnectTimeout,
				ClientID: cfg.Kafka.ClientID,
			},
		}),
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("closing kafka client")
			return errors.Join(c.writer.Close(), c.reader.Close())
		},
	})

	return c
}

func (k *kafkaClient) Publish(ctx context.Context, key []byte, value []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

func (k *kafkaClient) Consume(ctx context.Context, handler Handler) error {
	for {
		raw, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			k.logger.Error("kafka fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		if err := handler(ctx, decode(raw)); err != nil {
			// Offset stays uncommitted; the message comes around again.
			k.logger.Error("message handler failed",
				zap.Error(err), zap.Int64("offset", raw.Offset))
			continue
		}

		if err := k.reader.CommitMessages(ctx, raw); err != nil {
			k.logger.Warn("commit failed", zap.Error(err))
		}
	}
}

func (k *kafkaClient) Topic() string { return k.topic }

func decode(raw kafka.Message) Message {
	msg := Message{
		Topic:  raw.Topic,
		Key:    append([]byte(nil), raw.Key...),
		Value:  append([]byte(nil), raw.Value...),
		Offset: raw.Offset,
		Time:   raw.Time,
	}
	if len(raw.Headers) > 0 {
		msg.Headers = make(map[string]string, len(raw.Headers))
		for _, h := range raw.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}

type kafkaLogger struct {
	logger *zap.Logger
}

func (k kafkaLogger) Printf(msg string, args ...any) {
	k.logger.Sugar().Debugf(msg, args...)
}
