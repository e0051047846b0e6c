package bootstrap

import (
	"draftsync/internal/config"
	"draftsync/internal/controller"
	"draftsync/internal/pkg/logger"
	"draftsync/internal/repository/memory"
	"draftsync/internal/service"
	"draftsync/internal/upstream"
	"draftsync/internal/websocket"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	// Controllers
	DraftController controller.IDraftController

	// Background Services (Exposed for main.go to run)
	StatusConsumer IStatusRunner
	EngineNotifier service.IEngineNotifierService
	StatusStream   *upstream.StatusStream // nil when no upstream ws is configured

	// WebSockets & shared state
	WebSocketHub *websocket.Hub
	Sessions     service.ISessionManager
	Logger       logger.ILogger
}

// IStatusRunner is what main.go needs from the status consumer.
type IStatusRunner = service.IStatusConsumerService

func NewContainer(cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	syncLogger := logger.NewIsolatedLogger(cfg.App.SyncLogFilePath)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Upstream collaborators
	store := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIToken)

	var statusStream *upstream.StatusStream
	if cfg.Upstream.WsURL != "" {
		statusStream = upstream.NewStatusStream(
			cfg.Upstream.WsURL,
			cfg.Upstream.APIToken,
			cfg.Upstream.StatusTopic,
			pubSub,
			syncLogger,
		)
	}

	// 4. UI push hub
	wsHub := websocket.NewHub(syncLogger)
	go wsHub.Run()

	// 5. Engine wiring
	draftCache := memory.NewDraftCache(cfg.Sync.SessionIdleTTL)
	enginePublisher := service.NewEventPublisherService(cfg.Sync.EngineTopic, pubSub)

	sessions := service.NewSessionManager(
		store,
		draftCache,
		enginePublisher,
		sysLogger,
		cfg.Sync.DebounceDelay(),
		func(sessionId string) service.Editor {
			return websocket.NewRemoteEditor(wsHub, sessionId)
		},
	)

	statusConsumer := service.NewStatusConsumerService(
		pubSub,
		cfg.Upstream.StatusTopic,
		sessions,
		syncLogger,
	)
	engineNotifier := service.NewEngineNotifierService(
		pubSub,
		cfg.Sync.EngineTopic,
		wsHub, // Hub implements SessionDelivery
		syncLogger,
	)

	return &Container{
		DraftController: controller.NewDraftController(sessions),
		StatusConsumer:  statusConsumer,
		EngineNotifier:  engineNotifier,
		StatusStream:    statusStream,
		WebSocketHub:    wsHub,
		Sessions:        sessions,
		Logger:          sysLogger,
	}
}
