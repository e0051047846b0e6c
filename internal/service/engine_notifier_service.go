package service

import (
	"context"
	"encoding/json"

	"draftsync/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
)

// SessionDelivery pushes a payload to every UI client watching a session.
// The websocket Hub implements it.
type SessionDelivery interface {
	Send(sessionID string, data []byte)
}

// IEngineNotifierService forwards engine events from the in-process bus to
// the UI push channel, so editors render saved/unsaved indicators and
// replacement directives without polling.
type IEngineNotifierService interface {
	Start(ctx context.Context) error
}

type engineNotifierService struct {
	subscriber message.Subscriber
	topicName  string
	delivery   SessionDelivery
	logger     logger.ILogger
}

func NewEngineNotifierService(
	subscriber message.Subscriber,
	topicName string,
	delivery SessionDelivery,
	log logger.ILogger,
) IEngineNotifierService {
	return &engineNotifierService{
		subscriber: subscriber,
		topicName:  topicName,
		delivery:   delivery,
		logger:     log,
	}
}

func (ns *engineNotifierService) Start(ctx context.Context) error {
	messages, err := ns.subscriber.Subscribe(ctx, ns.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			ns.forward(msg)
		}
	}()

	return nil
}

func (ns *engineNotifierService) forward(msg *message.Message) {
	defer msg.Ack()

	var envelope EventEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		ns.logger.Error("EngineNotifier", "Malformed engine event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	sessionId, _ := envelope.Payload["session_id"].(string)
	if sessionId == "" {
		return
	}

	ns.delivery.Send(sessionId, msg.Payload)
}
