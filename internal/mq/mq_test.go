package mq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/eventos/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakeBackend struct {
	published []published
	err       error
	closed    bool
}

func (f *fakeBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.published = append(f.published, published{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	for i, p := range f.published {
		if p.channel != channel {
			continue
		}
		if err := handler(ctx, Message{ID: "msg-" + string(rune('1'+i)), Data: p.data, Attributes: p.attrs}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestOpenNoneReturnsNil(t *testing.T) {
	m, err := Open(context.Background(), config.MQConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: "nats"})
	assert.Error(t, err)
}

func TestOpenReportsMissingSettings(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: config.BackendRabbitMQ})
	assert.ErrorContains(t, err, "rabbitmq url is required")

	_, err = Open(context.Background(), config.MQConfig{Backend: config.BackendKafka})
	assert.ErrorContains(t, err, "kafka brokers are required")

	_, err = Open(context.Background(), config.MQConfig{Backend: config.BackendPubSub})
	assert.ErrorContains(t, err, "pubsub project id is required")
}

func TestEventPublisherRoundTrip(t *testing.T) {
	backend := &fakeBackend{}
	queue := New(backend)
	publisher := NewEventPublisher(queue, "users.registered")

	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := publisher.PublishUserRegistered(context.Background(), UserRegistered{
		UserID:     "u-1",
		Email:      "a@x.com",
		UserName:   "abc",
		Role:       "attendee",
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	require.Len(t, backend.published, 1)
	assert.Equal(t, "users.registered", backend.published[0].channel)
	assert.Equal(t, map[string]string{"type": EventUserRegistered}, backend.published[0].attrs)
	assert.JSONEq(t, `{
		"type": "user.registered",
		"userId": "u-1",
		"email": "a@x.com",
		"userName": "abc",
		"role": "attendee",
		"occurredAt": "2026-03-01T12:00:00Z"
	}`, string(backend.published[0].data))

	var received []UserRegistered
	err = queue.Subscribe(context.Background(), publisher.Channel(), func(_ context.Context, msg Message) error {
		event, err := DecodeUserRegistered(msg)
		if err != nil {
			return err
		}
		received = append(received, event)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "abc", received[0].UserName)
	assert.True(t, occurred.Equal(received[0].OccurredAt))

	require.NoError(t, queue.Close())
	assert.True(t, backend.closed)
}

func TestEventPublisherPropagatesBackendError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("broker down")}
	publisher := NewEventPublisher(New(backend), "users.registered")

	_, err := publisher.PublishUserRegistered(context.Background(), UserRegistered{UserID: "u-1"})
	assert.ErrorContains(t, err, "broker down")
}

func TestDecodeUserRegisteredRejectsOtherTypes(t *testing.T) {
	_, err := DecodeUserRegistered(Message{ID: "1", Data: []byte(`{"type":"user.deleted"}`)})
	assert.Error(t, err)

	_, err = DecodeUserRegistered(Message{ID: "2", Data: []byte(`not json`)})
	assert.Error(t, err)
}

func TestDeliveryMessage(t *testing.T) {
	sent := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	msg := deliveryMessage(amqp.Delivery{
		MessageId:   "abc",
		Body:        []byte(`{}`),
		Timestamp:   sent,
		Redelivered: true,
		Headers:     amqp.Table{"type": "user.registered", "attempt": int32(2), "raw": []byte("x")},
	})

	assert.Equal(t, "abc", msg.ID)
	assert.Equal(t, sent, msg.PublishedAt)
	assert.True(t, msg.Redelivered)
	assert.Equal(t, map[string]string{"type": "user.registered", "attempt": "2", "raw": "x"}, msg.Attributes)

	assert.Nil(t, headersToAttributes(nil))
}

func TestKafkaMessageMetadata(t *testing.T) {
	withID := kafka.Message{
		Topic:   "users.registered",
		Headers: []kafka.Header{{Key: kafkaMessageIDHeader, Value: []byte("id-1")}, {Key: "type", Value: []byte("user.registered")}},
	}
	assert.Equal(t, "id-1", kafkaMessageID(withID))
	assert.Equal(t, map[string]string{"type": "user.registered"}, kafkaHeadersToAttributes(withID.Headers))

	withoutID := kafka.Message{Topic: "users.registered", Partition: 2, Offset: 41}
	assert.Equal(t, "users.registered/2/41", kafkaMessageID(withoutID))
}

func TestDeliverKafkaRetriesBeforeGivingUp(t *testing.T) {
	ctx := context.Background()

	var seen []Message
	flaky := func(_ context.Context, msg Message) error {
		seen = append(seen, msg)
		if len(seen) < 2 {
			return errors.New("not yet")
		}
		return nil
	}
	require.NoError(t, deliverKafka(ctx, flaky, Message{ID: "m-1"}, time.Millisecond))
	require.Len(t, seen, 2)
	assert.False(t, seen[0].Redelivered)
	assert.True(t, seen[1].Redelivered)

	attempts := 0
	broken := func(context.Context, Message) error {
		attempts++
		return errors.New("poison")
	}
	err := deliverKafka(ctx, broken, Message{ID: "m-2"}, time.Millisecond)
	require.EqualError(t, err, "poison")
	assert.Equal(t, kafkaMaxAttempts, attempts)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = deliverKafka(cancelled, broken, Message{ID: "m-3"}, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func newFakePubSub(t *testing.T) *PubSubClient {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(context.Background(), "eventos-test", option.WithGRPCConn(conn))
	require.NoError(t, err)

	p := newPubSubClient(client, "")
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPubSubSubscriptionHasDeadLetterPolicy(t *testing.T) {
	p := newFakePubSub(t)
	ctx := context.Background()

	topic, err := p.topic(ctx, "user.registered")
	require.NoError(t, err)
	sub, err := p.subscription(ctx, "user.registered", topic)
	require.NoError(t, err)
	assert.Equal(t, "user.registered-sub", sub.ID())

	cfg, err := sub.Config(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg.DeadLetterPolicy)
	assert.Equal(t, "projects/eventos-test/topics/user.registered-dead-letter", cfg.DeadLetterPolicy.DeadLetterTopic)
	assert.Equal(t, pubsubMaxDeliveries, cfg.DeadLetterPolicy.MaxDeliveryAttempts)
}

func TestPubSubRedeliversRejectedMessage(t *testing.T) {
	p := newFakePubSub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Messages published before the subscription exists are dropped.
	topic, err := p.topic(ctx, "user.registered")
	require.NoError(t, err)
	_, err = p.subscription(ctx, "user.registered", topic)
	require.NoError(t, err)

	_, err = p.Publish(ctx, "user.registered", []byte(`{"type":"user.registered"}`), map[string]string{"k": "v"})
	require.NoError(t, err)

	var (
		mu         sync.Mutex
		deliveries []Message
	)
	err = p.Subscribe(ctx, "user.registered", func(_ context.Context, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		deliveries = append(deliveries, msg)
		if len(deliveries) == 1 {
			return errors.New("try again")
		}
		cancel()
		return nil
	})
	require.NoError(t, err)

	require.Len(t, deliveries, 2)
	assert.False(t, deliveries[0].Redelivered)
	assert.True(t, deliveries[1].Redelivered)
	assert.Equal(t, deliveries[0].ID, deliveries[1].ID)
	assert.Equal(t, "v", deliveries[1].Attributes["k"])
	assert.False(t, deliveries[1].PublishedAt.IsZero())
}
