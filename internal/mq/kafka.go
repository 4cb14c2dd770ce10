package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eventos/apiserver/config"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	kafkaMessageIDHeader = "message-id"
	kafkaMaxAttempts     = 3
	kafkaRetryBackoff    = time.Second
)

// KafkaClient publishes through one shared writer and opens a reader per subscription.
type KafkaClient struct {
	brokers []string
	groupID string
	writer  *kafka.Writer

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewKafkaClient constructs a Kafka client from config.
func NewKafkaClient(cfg config.KafkaConfig) (*KafkaClient, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "eventos"
	}

	return &KafkaClient{
		brokers: cfg.Brokers,
		groupID: groupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			RequiredAcks:           kafka.RequireAll,
		},
	}, nil
}

// Publish writes a message to the topic named by channel.
func (k *KafkaClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("kafka channel is required")
	}

	messageID := uuid.NewString()
	headers := make([]kafka.Header, 0, len(attrs)+1)
	headers = append(headers, kafka.Header{Key: kafkaMessageIDHeader, Value: []byte(messageID)})
	for key, value := range attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic:   channel,
		Key:     []byte(messageID),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe consumes the topic named by channel as part of the configured
// consumer group. Offsets are committed only for messages the handler accepts.
// A message still rejected after kafkaMaxAttempts stops the subscription
// without committing, so the group redelivers it on the next Subscribe.
func (k *KafkaClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("kafka channel is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		GroupID:  k.groupID,
		Topic:    channel,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	k.track(reader)
	defer func() {
		_ = reader.Close()
	}()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		message := Message{
			ID:          kafkaMessageID(msg),
			Data:        msg.Value,
			Attributes:  kafkaHeadersToAttributes(msg.Headers),
			PublishedAt: msg.Time,
		}
		if err := deliverKafka(ctx, handler, message, kafkaRetryBackoff); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka message %s rejected after %d attempts: %w", message.ID, kafkaMaxAttempts, err)
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}

// Close flushes the writer and closes any open readers.
func (k *KafkaClient) Close() error {
	k.mu.Lock()
	readers := k.readers
	k.readers = nil
	k.mu.Unlock()

	errs := make([]error, 0, len(readers)+1)
	for _, reader := range readers {
		errs = append(errs, reader.Close())
	}
	errs = append(errs, k.writer.Close())
	return errors.Join(errs...)
}

func (k *KafkaClient) track(reader *kafka.Reader) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.readers = append(k.readers, reader)
}

// deliverKafka runs handler until it accepts message, backing off linearly
// between attempts. Kafka has no per-message nack.
func deliverKafka(ctx context.Context, handler Handler, message Message, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= kafkaMaxAttempts; attempt++ {
		if attempt > 1 {
			message.Redelivered = true
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(attempt-1)):
			}
		}
		if err = handler(ctx, message); err == nil {
			return nil
		}
	}
	return err
}

func kafkaMessageID(msg kafka.Message) string {
	for _, header := range msg.Headers {
		if header.Key == kafkaMessageIDHeader {
			return string(header.Value)
		}
	}
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}

func kafkaHeadersToAttributes(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for _, header := range headers {
		if header.Key == kafkaMessageIDHeader {
			continue
		}
		attrs[header.Key] = string(header.Value)
	}
	return attrs
}
