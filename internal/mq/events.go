package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventUserRegistered = "user.registered"

	attrEventType = "type"
)

// UserRegistered is published once a registration has been committed.
type UserRegistered struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	UserName   string    `json:"userName"`
	Role       string    `json:"role"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher is the publishing half of a Backend.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// EventPublisher encodes domain events and publishes them to a fixed channel.
type EventPublisher struct {
	publisher Publisher
	channel   string
}

func NewEventPublisher(publisher Publisher, channel string) *EventPublisher {
	return &EventPublisher{publisher: publisher, channel: channel}
}

// PublishUserRegistered publishes event, filling Type when it is empty.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event UserRegistered) (string, error) {
	if event.Type == "" {
		event.Type = EventUserRegistered
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", event.Type, err)
	}
	return p.publisher.Publish(ctx, p.channel, data, map[string]string{attrEventType: event.Type})
}

// Channel returns the channel events are published to.
func (p *EventPublisher) Channel() string {
	return p.channel
}

// DecodeUserRegistered parses a message produced by PublishUserRegistered.
func DecodeUserRegistered(msg Message) (UserRegistered, error) {
	var event UserRegistered
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return UserRegistered{}, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	if event.Type != EventUserRegistered {
		return UserRegistered{}, fmt.Errorf("unexpected event type %q", event.Type)
	}
	return event, nil
}
