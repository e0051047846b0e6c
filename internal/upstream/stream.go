package upstream

import (
	"context"
	"time"

	"draftsync/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gorilla/websocket"
)

const (
	initialReconnectWait = 1 * time.Second
	maxReconnectWait     = 30 * time.Second
	readWait             = 90 * time.Second

	// A connection that held this long counts as a recovery; the backoff
	// schedule starts over instead of staying at the cap forever.
	stableConnWindow = 1 * time.Minute
)

// StatusStream subscribes to the upstream status push channel and
// re-publishes every event onto the in-process bus. It does not interpret
// events; routing happens in the status consumer service.
type StatusStream struct {
	wsURL    string
	apiToken string
	topic    string
	pub      message.Publisher
	logger   logger.ILogger
}

func NewStatusStream(wsURL, apiToken, topic string, pub message.Publisher, log logger.ILogger) *StatusStream {
	return &StatusStream{
		wsURL:    wsURL,
		apiToken: apiToken,
		topic:    topic,
		pub:      pub,
		logger:   log,
	}
}

// Run keeps a connection to the push channel alive until ctx is cancelled,
// reconnecting with capped exponential backoff. A stable connection resets
// the schedule. Safe to run in a goroutine.
func (s *StatusStream) Run(ctx context.Context) {
	var wait time.Duration
	for {
		start := time.Now()
		err := s.readLoop(ctx)
		wait = nextReconnectWait(wait, time.Since(start))
		if err != nil {
			s.logger.Warn("StatusStream", "Connection lost", map[string]interface{}{
				"error":      err.Error(),
				"retry_wait": wait.String(),
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// nextReconnectWait doubles the previous wait up to the cap. The first
// attempt (prev zero) and any attempt after a stable connection start back
// at the initial wait.
func nextReconnectWait(prev, connectedFor time.Duration) time.Duration {
	if prev == 0 || connectedFor >= stableConnWindow {
		return initialReconnectWait
	}
	next := prev * 2
	if next > maxReconnectWait {
		next = maxReconnectWait
	}
	return next
}

func (s *StatusStream) readLoop(ctx context.Context) error {
	header := map[string][]string{}
	if s.apiToken != "" {
		header["Authorization"] = []string{"Bearer " + s.apiToken}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.logger.Info("StatusStream", "Connected to upstream push channel", map[string]interface{}{
		"url": s.wsURL,
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		msg := message.NewMessage(watermill.NewUUID(), data)
		if err := s.pub.Publish(s.topic, msg); err != nil {
			s.logger.Error("StatusStream", "Failed to publish status event", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
