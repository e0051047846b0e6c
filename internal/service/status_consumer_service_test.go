package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"draftsync/internal/dto"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

func publishStatus(t *testing.T, bus *gochannel.GoChannel, topic string, event dto.StatusEventMessage) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(topic, message.NewMessage(watermill.NewUUID(), payload)))
}

func TestStatusConsumerRoutesDraftUpdated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	store := newManagerStore()
	sessions := newTestManager(store)

	engine, err := sessions.Activate(ctx, "s1")
	require.NoError(t, err)

	consumer := NewStatusConsumerService(bus, "STATUS_TEST", sessions, nopLogger{})
	require.NoError(t, consumer.Consume(ctx))

	publishStatus(t, bus, "STATUS_TEST", dto.StatusEventMessage{
		Type:      dto.StatusDraftUpdated,
		SessionId: "s1",
		Draft:     &dto.DraftResponse{Id: "d1", Title: "One", Content: "rewritten upstream"},
	})

	require.Eventually(t, func() bool {
		return engine.State().Content == "rewritten upstream"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStatusConsumerRoutesDraftSwitched(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	store := newManagerStore()
	sessions := newTestManager(store)

	engine, err := sessions.Activate(ctx, "s1")
	require.NoError(t, err)

	consumer := NewStatusConsumerService(bus, "STATUS_TEST", sessions, nopLogger{})
	require.NoError(t, consumer.Consume(ctx))

	publishStatus(t, bus, "STATUS_TEST", dto.StatusEventMessage{
		Type:      dto.StatusDraftSwitched,
		SessionId: "s1",
		Draft:     &dto.DraftResponse{Id: "d9", Title: "Next", Content: "next document"},
	})

	require.Eventually(t, func() bool {
		st := engine.State()
		return st.DraftId == "d9" && st.Content == "next document"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStatusConsumerIgnoresUnknownSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	store := newManagerStore()
	sessions := newTestManager(store)

	consumer := NewStatusConsumerService(bus, "STATUS_TEST", sessions, nopLogger{})
	require.NoError(t, consumer.Consume(ctx))

	// Event for a session never activated here: dropped, no engine appears.
	publishStatus(t, bus, "STATUS_TEST", dto.StatusEventMessage{
		Type:      dto.StatusDraftUpdated,
		SessionId: "ghost",
		Draft:     &dto.DraftResponse{Id: "dX", Content: "irrelevant"},
	})

	time.Sleep(100 * time.Millisecond)
	_, ok := sessions.Get("ghost")
	require.False(t, ok)
}
