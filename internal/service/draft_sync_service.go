package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"draftsync/internal/dto"
	"draftsync/internal/entity"
	"draftsync/internal/pkg/logger"
	"draftsync/internal/repository/memory"
	"draftsync/internal/upstream"
	"draftsync/pkg/events"
)

// IDraftSyncService keeps one draft's edit buffer consistent between three
// concurrent influences: user keystrokes, debounced auto-save, and
// externally pushed draft replacements. Invariants:
//   - an external update never overwrites LocalContent while the user is
//     actively editing (the buffer wins, the push is deferred),
//   - HasUnsavedChanges is true exactly while LocalContent or Title differ
//     from the last persisted values,
//   - at most one updateDraft call is in flight; later requests coalesce
//     into a single pending slot carrying the latest content.
type IDraftSyncService interface {
	OnExternalDraftChange(draft *entity.Draft)
	OnUserInput(content string, title *string, cursor *entity.CursorPosition)
	OnEditorFocusLost(ctx context.Context) error
	Refresh(ctx context.Context) error
	SwitchDraft(ctx context.Context, next *entity.Draft) error
	Flush(ctx context.Context) error
	State() *dto.DraftStateResponse
	Close()
}

type pendingSave struct {
	content string
	title   string
	waiters []chan error
}

type draftSyncService struct {
	sessionId     string
	store         upstream.DraftStore
	cache         *memory.DraftCache
	publisher     IEventPublisherService
	editor        Editor
	logger        logger.ILogger
	debounceDelay time.Duration

	mu                   sync.Mutex
	draft                entity.Draft
	session              entity.EditSession
	pendingExternal      *entity.Draft
	debounce             *time.Timer
	inFlight             bool
	pending              *pendingSave
	lastPersistedContent string
	lastPersistedTitle   string
	closed               bool
}

func NewDraftSyncService(
	sessionId string,
	initial *entity.Draft,
	store upstream.DraftStore,
	cache *memory.DraftCache,
	publisher IEventPublisherService,
	editor Editor,
	log logger.ILogger,
	debounceDelay time.Duration,
) IDraftSyncService {
	if debounceDelay <= 0 {
		debounceDelay = 2 * time.Second
	}
	s := &draftSyncService{
		sessionId:     sessionId,
		store:         store,
		cache:         cache,
		publisher:     publisher,
		editor:        editor,
		logger:        log,
		debounceDelay: debounceDelay,
	}
	if initial != nil {
		s.draft = *initial
		s.session.LocalContent = initial.Content
		s.session.Title = initial.Title
		s.lastPersistedContent = initial.Content
		s.lastPersistedTitle = initial.Title
		if cache != nil {
			cache.Put(sessionId, initial)
		}
	}
	return s
}

// OnUserInput records the latest buffer on a keystroke and arms the
// trailing debounce. It never calls the network itself.
func (s *draftSyncService) OnUserInput(content string, title *string, cursor *entity.CursorPosition) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	s.session.LocalContent = content
	if title != nil {
		s.session.Title = *title
	}
	if cursor != nil {
		s.session.LastCursorPosition = *cursor
	}
	s.session.IsUserEditing = true

	dirty := content != s.lastPersistedContent || s.session.Title != s.lastPersistedTitle
	s.session.HasUnsavedChanges = dirty

	if dirty {
		// Trailing debounce: every keystroke cancels and re-arms the timer.
		if s.debounce != nil {
			s.debounce.Stop()
		}
		s.debounce = time.AfterFunc(s.debounceDelay, s.debounceFired)
	} else {
		// Buffer is back to the persisted text (e.g. undo); nothing to save.
		s.stopDebounceLocked()
	}
	s.mu.Unlock()

	s.publishEvent(events.TypeDraftEditing, map[string]interface{}{
		"has_unsaved_changes": dirty,
	})
}

func (s *draftSyncService) debounceFired() {
	s.mu.Lock()
	if s.closed || !s.session.HasUnsavedChanges {
		s.mu.Unlock()
		return
	}
	s.enqueuePersistLocked(s.session.LocalContent, s.session.Title, nil)
	s.mu.Unlock()
}

// OnEditorFocusLost ends the editing window. Unsaved changes are flushed
// before returning (bypassing the debounce timer) so navigating away never
// loses the buffer. A clean blur applies any deferred external update.
func (s *draftSyncService) OnEditorFocusLost(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.session.IsUserEditing = false
	s.stopDebounceLocked()

	if s.session.HasUnsavedChanges {
		// The flush supersedes any update deferred during this edit: the
		// buffer being saved is newer than the pushed content.
		s.pendingExternal = nil
		waiter := make(chan error, 1)
		s.enqueuePersistLocked(s.session.LocalContent, s.session.Title, waiter)
		s.mu.Unlock()
		return s.await(ctx, waiter)
	}

	deferred := s.pendingExternal
	s.pendingExternal = nil
	if deferred == nil {
		s.mu.Unlock()
		return nil
	}

	restore := s.applyReplaceLocked(deferred)
	snapshot := s.draft
	s.mu.Unlock()
	s.finishReplace(&snapshot, restore)
	return nil
}

// OnExternalDraftChange feeds a draft pushed by the status channel (initial
// load, server-side regeneration, manual refresh elsewhere). While the user
// is editing only references are reconciled and the content replacement is
// deferred; otherwise the buffer is replaced with the cursor preserved.
func (s *draftSyncService) OnExternalDraftChange(draft *entity.Draft) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	// References are opaque passthrough and never conflict with typing.
	if draft.References != nil {
		s.draft.References = draft.References
	}

	if s.session.IsUserEditing {
		deferred := *draft
		s.pendingExternal = &deferred
		s.mu.Unlock()
		s.publishEvent(events.TypeDraftUpdateDeferred, map[string]interface{}{
			"draft_id": draft.Id,
		})
		return
	}

	// Idempotent reconciliation: an identical push must not trigger a
	// re-render or cursor churn.
	if draft.Id == s.draft.Id &&
		draft.Content == s.session.LocalContent &&
		draft.Title == s.session.Title &&
		!s.session.HasUnsavedChanges {
		s.draft.UpdatedAt = draft.UpdatedAt
		s.mu.Unlock()
		return
	}

	restore := s.applyReplaceLocked(draft)
	snapshot := s.draft
	s.mu.Unlock()
	s.finishReplace(&snapshot, restore)
}

// Refresh is the explicit user-triggered pull of the latest draft. The
// suppression rule still applies to content, but references and metadata
// are reconciled even mid-edit.
func (s *draftSyncService) Refresh(ctx context.Context) error {
	draft, err := s.store.GetDraft(ctx, s.sessionId)
	if err != nil {
		s.logError("Refresh failed", err)
		return fmt.Errorf("refresh draft: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	if s.session.IsUserEditing {
		if draft.References != nil {
			s.draft.References = draft.References
		}
		s.draft.UpdatedAt = draft.UpdatedAt
		// Title follows the server only while it has no local edits.
		if s.session.Title == s.lastPersistedTitle && draft.Title != s.session.Title {
			s.session.Title = draft.Title
			s.draft.Title = draft.Title
			s.lastPersistedTitle = draft.Title
		}
		snapshot := s.draft
		s.mu.Unlock()
		s.putCache(&snapshot)
		s.publishEvent(events.TypeDraftUpdateDeferred, map[string]interface{}{
			"draft_id": draft.Id,
			"refresh":  true,
		})
		return nil
	}

	if draft.Id == s.draft.Id &&
		draft.Content == s.session.LocalContent &&
		draft.Title == s.session.Title &&
		!s.session.HasUnsavedChanges {
		s.draft.UpdatedAt = draft.UpdatedAt
		s.mu.Unlock()
		return nil
	}

	restore := s.applyReplaceLocked(draft)
	snapshot := s.draft
	s.mu.Unlock()
	s.finishReplace(&snapshot, restore)
	return nil
}

// SwitchDraft replaces the engine's document when the writing session moves
// to a different draft. Unsaved edits on the prior draft are flushed first
// as a blocking precondition; a failed flush aborts the switch and returns
// the error, so the caller can warn instead of losing content.
func (s *draftSyncService) SwitchDraft(ctx context.Context, next *entity.Draft) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	if s.session.HasUnsavedChanges {
		waiter := make(chan error, 1)
		s.enqueuePersistLocked(s.session.LocalContent, s.session.Title, waiter)
		s.mu.Unlock()
		if err := s.await(ctx, waiter); err != nil {
			return fmt.Errorf("flush before switch: %w", err)
		}
		s.mu.Lock()
	}

	s.stopDebounceLocked()
	s.session.IsUserEditing = false
	s.pendingExternal = nil

	s.draft = *next
	s.session.LocalContent = next.Content
	s.session.Title = next.Title
	s.lastPersistedContent = next.Content
	s.lastPersistedTitle = next.Title
	s.session.HasUnsavedChanges = false
	s.session.LastCursorPosition = entity.CursorPosition{}
	snapshot := s.draft
	s.mu.Unlock()

	s.putCache(&snapshot)
	s.publishEvent(events.TypeDraftSwitched, map[string]interface{}{
		"draft_id": next.Id,
	})
	if s.editor != nil {
		s.editor.SetCursor(entity.CursorPosition{})
	}
	return nil
}

// Flush persists pending changes immediately (manual save action).
func (s *draftSyncService) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || !s.session.HasUnsavedChanges {
		s.mu.Unlock()
		return nil
	}
	s.stopDebounceLocked()
	waiter := make(chan error, 1)
	s.enqueuePersistLocked(s.session.LocalContent, s.session.Title, waiter)
	s.mu.Unlock()
	return s.await(ctx, waiter)
}

func (s *draftSyncService) State() *dto.DraftStateResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &dto.DraftStateResponse{
		SessionId:         s.sessionId,
		DraftId:           s.draft.Id,
		Title:             s.session.Title,
		Content:           s.session.LocalContent,
		References:        s.draft.References,
		IsUserEditing:     s.session.IsUserEditing,
		HasUnsavedChanges: s.session.HasUnsavedChanges,
		Cursor:            s.session.LastCursorPosition,
		LastSavedAt:       s.session.LastSavedAt,
	}
}

func (s *draftSyncService) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopDebounceLocked()
	s.mu.Unlock()
}

// --- persist path ---

// enqueuePersistLocked serializes saves: one in-flight call, later requests
// collapse into the pending slot (latest content wins, intermediate
// versions are skipped). Callers hold s.mu.
func (s *draftSyncService) enqueuePersistLocked(content, title string, waiter chan error) {
	if s.inFlight {
		if s.pending == nil {
			s.pending = &pendingSave{}
		}
		s.pending.content = content
		s.pending.title = title
		if waiter != nil {
			s.pending.waiters = append(s.pending.waiters, waiter)
		}
		return
	}

	s.inFlight = true
	save := &pendingSave{content: content, title: title}
	if waiter != nil {
		save.waiters = append(save.waiters, waiter)
	}
	go s.persistLoop(save)
}

func (s *draftSyncService) persistLoop(save *pendingSave) {
	for {
		err := s.persist(save.content, save.title)

		s.mu.Lock()
		for _, w := range save.waiters {
			w <- err
		}
		if s.pending != nil {
			save = s.pending
			s.pending = nil
			s.mu.Unlock()
			continue
		}
		s.inFlight = false
		s.mu.Unlock()
		return
	}
}

func (s *draftSyncService) persist(content, title string) error {
	s.mu.Lock()
	var titlePtr *string
	if title != s.lastPersistedTitle {
		t := title
		titlePtr = &t
	}
	s.mu.Unlock()

	// No deadline: a save stays pending until it resolves; the transport's
	// own limits apply.
	saved, err := s.store.UpdateDraft(context.Background(), s.sessionId, &dto.UpdateDraftRequest{
		Title:   titlePtr,
		Content: content,
	})
	if err != nil {
		s.logError("Persist failed, keeping local changes", err)
		s.publishEvent(events.TypeDraftSaveFailed, map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	s.mu.Lock()
	now := time.Now()
	s.lastPersistedContent = content
	s.lastPersistedTitle = title
	// Merge the canonical saved record so observers see it without a
	// round-trip re-fetch. The local buffer is untouched.
	s.draft.Content = saved.Content
	s.draft.Title = saved.Title
	if saved.References != nil {
		s.draft.References = saved.References
	}
	s.draft.UpdatedAt = saved.UpdatedAt
	s.session.LastSavedAt = &now
	s.session.HasUnsavedChanges = s.session.LocalContent != s.lastPersistedContent ||
		s.session.Title != s.lastPersistedTitle
	snapshot := s.draft
	s.mu.Unlock()

	s.putCache(&snapshot)
	s.publishEvent(events.TypeDraftSaved, map[string]interface{}{
		"draft_id": snapshot.Id,
		"saved_at": now,
	})
	return nil
}

// --- replacement helpers ---

// applyReplaceLocked swaps the buffer for an external draft and returns the
// clamped cursor to restore after the re-render. Callers hold s.mu.
func (s *draftSyncService) applyReplaceLocked(draft *entity.Draft) entity.CursorPosition {
	cur := s.session.LastCursorPosition
	if s.editor != nil {
		if c, ok := s.editor.Cursor(); ok {
			cur = c
		}
	}

	s.draft = *draft
	s.session.LocalContent = draft.Content
	s.session.Title = draft.Title
	s.lastPersistedContent = draft.Content
	s.lastPersistedTitle = draft.Title
	s.session.HasUnsavedChanges = false
	s.pendingExternal = nil

	restore := clampCursor(draft.Content, cur)
	s.session.LastCursorPosition = restore
	return restore
}

// finishReplace runs the second phase of a content swap, outside the lock:
// publish the replace (render), then restore the cursor against the new
// text. Restoring before the render would be overwritten.
func (s *draftSyncService) finishReplace(snapshot *entity.Draft, restore entity.CursorPosition) {
	s.putCache(snapshot)
	s.publishEvent(events.TypeDraftReplaced, map[string]interface{}{
		"draft_id": snapshot.Id,
	})
	if s.editor != nil {
		s.editor.SetCursor(restore)
	}
	s.publishEvent(events.TypeCursorRestore, map[string]interface{}{
		"line":   restore.Line,
		"column": restore.Column,
	})
}

// --- small helpers ---

func (s *draftSyncService) stopDebounceLocked() {
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
}

func (s *draftSyncService) await(ctx context.Context, waiter chan error) error {
	select {
	case err := <-waiter:
		return err
	case <-ctx.Done():
		// The persist keeps running in the background; the buffered waiter
		// is dropped without leaking the goroutine.
		return ctx.Err()
	}
}

func (s *draftSyncService) putCache(draft *entity.Draft) {
	if s.cache != nil {
		s.cache.Put(s.sessionId, draft)
	}
}

func (s *draftSyncService) publishEvent(eventType string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	evt := events.NewDraftEvent(eventType, s.sessionId, data)
	if err := s.publisher.PublishEvent(context.Background(), evt); err != nil && s.logger != nil {
		s.logger.Warn("DraftSync", "Failed to publish engine event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}

func (s *draftSyncService) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error("DraftSync", msg, map[string]interface{}{
			"session_id": s.sessionId,
			"error":      err.Error(),
		})
	}
}
