package service

import (
	"context"
	"encoding/json"

	"draftsync/internal/dto"
	"draftsync/internal/entity"
	"draftsync/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
)

// IStatusConsumerService drains the upstream status events off the
// in-process bus and routes them into the per-session sync engines.
type IStatusConsumerService interface {
	Consume(ctx context.Context) error
}

type statusConsumerService struct {
	subscriber message.Subscriber
	topicName  string
	sessions   ISessionManager
	logger     logger.ILogger
}

func NewStatusConsumerService(
	subscriber message.Subscriber,
	topicName string,
	sessions ISessionManager,
	log logger.ILogger,
) IStatusConsumerService {
	return &statusConsumerService{
		subscriber: subscriber,
		topicName:  topicName,
		sessions:   sessions,
		logger:     log,
	}
}

func (cs *statusConsumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *statusConsumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.StatusEventMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("StatusConsumer", "Failed to unmarshal status event", map[string]interface{}{
			"error": err.Error(),
		})
		msg.Ack() // malformed events are not retriable
		return
	}

	engine, ok := cs.sessions.Get(payload.SessionId)
	if !ok {
		// No engine means the session was never activated here; nothing to
		// reconcile against.
		msg.Ack()
		return
	}

	switch payload.Type {
	case dto.StatusDraftUpdated, dto.StatusReferencesUpdated:
		if payload.Draft == nil {
			cs.logger.Warn("StatusConsumer", "Status event without draft payload", map[string]interface{}{
				"type":       payload.Type,
				"session_id": payload.SessionId,
			})
			break
		}
		engine.OnExternalDraftChange(toDraft(payload.Draft))

	case dto.StatusDraftSwitched:
		if payload.Draft == nil {
			break
		}
		if err := engine.SwitchDraft(ctx, toDraft(payload.Draft)); err != nil {
			// The pre-switch flush failed: the engine kept the old draft and
			// its unsaved edits. Surface it; the user can retry or save.
			cs.logger.Error("StatusConsumer", "Draft switch blocked by failed flush", map[string]interface{}{
				"session_id": payload.SessionId,
				"error":      err.Error(),
			})
		}

	default:
		cs.logger.Debug("StatusConsumer", "Ignoring unknown status event", map[string]interface{}{
			"type": payload.Type,
		})
	}

	msg.Ack()
}

func toDraft(r *dto.DraftResponse) *entity.Draft {
	return &entity.Draft{
		Id:         r.Id,
		Title:      r.Title,
		Content:    r.Content,
		References: r.References,
		UpdatedAt:  r.UpdatedAt,
	}
}
