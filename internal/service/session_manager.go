package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"draftsync/internal/pkg/logger"
	"draftsync/internal/repository/memory"
	"draftsync/internal/upstream"
)

// ISessionManager owns one sync engine per writing session and enforces the
// pre-switch flush: moving to another session first persists the unsaved
// edits of the currently active one, and aborts on failure.
type ISessionManager interface {
	Activate(ctx context.Context, sessionId string) (IDraftSyncService, error)
	Get(sessionId string) (IDraftSyncService, bool)
	Deactivate(sessionId string)
	Shutdown(ctx context.Context)
}

type sessionManager struct {
	store         upstream.DraftStore
	cache         *memory.DraftCache
	publisher     IEventPublisherService
	logger        logger.ILogger
	debounceDelay time.Duration
	editorFactory func(sessionId string) Editor

	mu       sync.Mutex
	engines  map[string]IDraftSyncService
	activeId string
}

func NewSessionManager(
	store upstream.DraftStore,
	cache *memory.DraftCache,
	publisher IEventPublisherService,
	log logger.ILogger,
	debounceDelay time.Duration,
	editorFactory func(sessionId string) Editor,
) ISessionManager {
	return &sessionManager{
		store:         store,
		cache:         cache,
		publisher:     publisher,
		logger:        log,
		debounceDelay: debounceDelay,
		editorFactory: editorFactory,
		engines:       make(map[string]IDraftSyncService),
	}
}

// Activate makes sessionId the active writing session, creating its engine
// and loading the draft on first use. Switching away from a session with
// unsaved edits flushes them first; a failed flush aborts the activation.
func (m *sessionManager) Activate(ctx context.Context, sessionId string) (IDraftSyncService, error) {
	m.mu.Lock()
	prevId := m.activeId
	prev := m.engines[prevId]
	if prevId == sessionId {
		if engine, ok := m.engines[sessionId]; ok {
			m.mu.Unlock()
			return engine, nil
		}
	}
	m.mu.Unlock()

	if prev != nil && prevId != sessionId {
		if err := prev.Flush(ctx); err != nil {
			return nil, fmt.Errorf("flush session %s before switch: %w", prevId, err)
		}
	}

	m.mu.Lock()
	engine, ok := m.engines[sessionId]
	m.mu.Unlock()

	if !ok {
		draft, err := m.store.GetDraft(ctx, sessionId)
		if err != nil {
			return nil, fmt.Errorf("load draft for session %s: %w", sessionId, err)
		}

		var editor Editor
		if m.editorFactory != nil {
			editor = m.editorFactory(sessionId)
		}

		m.mu.Lock()
		// Another activation may have raced us; keep the first engine.
		if existing, found := m.engines[sessionId]; found {
			engine = existing
		} else {
			engine = NewDraftSyncService(
				sessionId,
				draft,
				m.store,
				m.cache,
				m.publisher,
				editor,
				m.logger,
				m.debounceDelay,
			)
			m.engines[sessionId] = engine
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.activeId = sessionId
	m.mu.Unlock()

	if m.logger != nil {
		m.logger.Info("SessionManager", "Session activated", map[string]interface{}{
			"session_id": sessionId,
		})
	}
	return engine, nil
}

func (m *sessionManager) Get(sessionId string) (IDraftSyncService, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	engine, ok := m.engines[sessionId]
	return engine, ok
}

func (m *sessionManager) Deactivate(sessionId string) {
	m.mu.Lock()
	engine, ok := m.engines[sessionId]
	if ok {
		delete(m.engines, sessionId)
	}
	if m.activeId == sessionId {
		m.activeId = ""
	}
	m.mu.Unlock()

	if ok {
		engine.Close()
	}
	if m.cache != nil {
		m.cache.Delete(sessionId)
	}
}

// Shutdown flushes every engine so a gateway stop never discards edits.
func (m *sessionManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	engines := make([]IDraftSyncService, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	for _, e := range engines {
		if err := e.Flush(ctx); err != nil && m.logger != nil {
			m.logger.Error("SessionManager", "Flush on shutdown failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		e.Close()
	}
}
