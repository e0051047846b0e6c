package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"draftsync/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

type IEventPublisherService interface {
	PublishEvent(ctx context.Context, evt events.Event) error
}

type eventPublisherService struct {
	topicName string
	pubSub    message.Publisher
}

func NewEventPublisherService(topicName string, pubSub message.Publisher) IEventPublisherService {
	return &eventPublisherService{
		topicName: topicName,
		pubSub:    pubSub,
	}
}

// EventEnvelope is the wire form of an engine event on the bus.
type EventEnvelope struct {
	Type       string                 `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func (p *eventPublisherService) PublishEvent(ctx context.Context, evt events.Event) error {
	envelope := EventEnvelope{
		Type:       evt.EventType(),
		Payload:    evt.Payload(),
		OccurredAt: evt.Timestamp(),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := p.pubSub.Publish(p.topicName, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", evt.EventType(), err)
	}
	return nil
}
