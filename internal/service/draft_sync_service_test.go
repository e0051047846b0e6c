package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"draftsync/internal/dto"
	"draftsync/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore records updateDraft traffic and can fail or stall on demand.
type fakeStore struct {
	mu            sync.Mutex
	draft         entity.Draft
	updateCalls   []dto.UpdateDraftRequest
	getCalls      int
	updateErr     error
	updateDelay   time.Duration
	inFlight      int
	maxConcurrent int
}

func (f *fakeStore) GetDraft(ctx context.Context, sessionId string) (*entity.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	d := f.draft
	return &d, nil
}

func (f *fakeStore) UpdateDraft(ctx context.Context, sessionId string, req *dto.UpdateDraftRequest) (*entity.Draft, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxConcurrent {
		f.maxConcurrent = f.inFlight
	}
	delay := f.updateDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--

	if f.updateErr != nil {
		return nil, f.updateErr
	}

	f.updateCalls = append(f.updateCalls, *req)
	f.draft.Content = req.Content
	if req.Title != nil {
		f.draft.Title = *req.Title
	}
	now := time.Now()
	f.draft.UpdatedAt = &now
	d := f.draft
	return &d, nil
}

func (f *fakeStore) calls() []dto.UpdateDraftRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dto.UpdateDraftRequest, len(f.updateCalls))
	copy(out, f.updateCalls)
	return out
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

type fakeEditor struct {
	mu       sync.Mutex
	pos      entity.CursorPosition
	hasPos   bool
	setCalls []entity.CursorPosition
}

func (e *fakeEditor) Cursor() (entity.CursorPosition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos, e.hasPos
}

func (e *fakeEditor) SetCursor(pos entity.CursorPosition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setCalls = append(e.setCalls, pos)
}

func newTestEngine(t *testing.T, store *fakeStore, editor Editor, debounce time.Duration) IDraftSyncService {
	t.Helper()
	initial := store.draft
	engine := NewDraftSyncService("s1", &initial, store, nil, nil, editor, nil, debounce)
	t.Cleanup(engine.Close)
	return engine
}

func TestNoClobberWhileEditing(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Title: "T", Content: "Hello"}}
	engine := newTestEngine(t, store, nil, time.Hour)

	engine.OnUserInput("draft in progress", nil, nil)

	engine.OnExternalDraftChange(&entity.Draft{Id: "d1", Title: "T", Content: "server version"})

	st := engine.State()
	assert.Equal(t, "draft in progress", st.Content, "external push must not clobber an active edit")
	assert.True(t, st.IsUserEditing)
	assert.True(t, st.HasUnsavedChanges)
}

func TestExternalReferencesReconciledWhileEditing(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "Hello"}}
	engine := newTestEngine(t, store, nil, time.Hour)

	engine.OnUserInput("typing...", nil, nil)
	engine.OnExternalDraftChange(&entity.Draft{
		Id:      "d1",
		Content: "server version",
		References: []entity.Reference{
			{Id: "r1", Citation: "Doe 2024"},
		},
	})

	st := engine.State()
	assert.Equal(t, "typing...", st.Content)
	require.Len(t, st.References, 1)
	assert.Equal(t, "r1", st.References[0].Id)
}

func TestFlushOnBlur(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "Hello"}}
	engine := newTestEngine(t, store, nil, time.Hour) // debounce will never fire on its own

	engine.OnUserInput("Hello world", nil, nil)
	require.True(t, engine.State().HasUnsavedChanges)

	err := engine.OnEditorFocusLost(context.Background())
	require.NoError(t, err)

	calls := store.calls()
	require.Len(t, calls, 1, "blur must persist before returning")
	assert.Equal(t, "Hello world", calls[0].Content)

	st := engine.State()
	assert.False(t, st.HasUnsavedChanges)
	assert.False(t, st.IsUserEditing)
	assert.NotNil(t, st.LastSavedAt)
}

func TestBlurWithoutChangesDoesNotPersist(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "Hello"}}
	engine := newTestEngine(t, store, nil, time.Hour)

	require.NoError(t, engine.OnEditorFocusLost(context.Background()))
	assert.Empty(t, store.calls())
}

func TestDebounceCoalescing(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: ""}}
	engine := newTestEngine(t, store, nil, 50*time.Millisecond)

	engine.OnUserInput("a", nil, nil)
	engine.OnUserInput("ab", nil, nil)
	engine.OnUserInput("abc", nil, nil)
	engine.OnUserInput("abcd", nil, nil)
	engine.OnUserInput("abcde", nil, nil)

	require.Eventually(t, func() bool {
		return len(store.calls()) == 1
	}, 3*time.Second, 10*time.Millisecond, "one trailing persist for the whole burst")

	// No extra calls trickle in afterwards.
	time.Sleep(150 * time.Millisecond)
	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "abcde", calls[0].Content, "persist carries the last buffer")

	require.Eventually(t, func() bool {
		return !engine.State().HasUnsavedChanges
	}, 3*time.Second, 10*time.Millisecond)
}

func TestDebounceNotArmedWhenBufferMatchesPersisted(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "Hello"}}
	engine := newTestEngine(t, store, nil, 50*time.Millisecond)

	// Type away and undo back to the persisted text within the window.
	engine.OnUserInput("Hello!", nil, nil)
	engine.OnUserInput("Hello", nil, nil)
	assert.False(t, engine.State().HasUnsavedChanges)

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, store.calls())
}

func TestSwitchFlushesFirst(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "old content"}}
	engine := newTestEngine(t, store, nil, time.Hour)

	engine.OnUserInput("old content, edited", nil, nil)

	err := engine.SwitchDraft(context.Background(), &entity.Draft{Id: "d2", Title: "Next", Content: "new doc"})
	require.NoError(t, err)

	calls := store.calls()
	require.Len(t, calls, 1, "prior draft must be flushed before the switch")
	assert.Equal(t, "old content, edited", calls[0].Content)

	st := engine.State()
	assert.Equal(t, "d2", st.DraftId)
	assert.Equal(t, "new doc", st.Content)
	assert.False(t, st.HasUnsavedChanges)
	assert.False(t, st.IsUserEditing)
	assert.Equal(t, entity.CursorPosition{}, st.Cursor)
}

func TestSwitchAbortsOnFlushFailure(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "old content"}}
	store.setErr(errors.New("upstream down"))
	engine := newTestEngine(t, store, nil, time.Hour)

	engine.OnUserInput("unsaved work", nil, nil)

	err := engine.SwitchDraft(context.Background(), &entity.Draft{Id: "d2", Content: "new doc"})
	require.Error(t, err)

	// The engine kept the old draft and its unsaved edit.
	st := engine.State()
	assert.Equal(t, "d1", st.DraftId)
	assert.Equal(t, "unsaved work", st.Content)
	assert.True(t, st.HasUnsavedChanges)
}

func TestIdempotentReconciliation(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Title: "T", Content: "Hello"}}
	editor := &fakeEditor{}
	engine := newTestEngine(t, store, editor, time.Hour)

	push := &entity.Draft{Id: "d1", Title: "T2", Content: "Hello v2"}
	engine.OnExternalDraftChange(push)

	first := engine.State()
	assert.Equal(t, "Hello v2", first.Content)
	assert.Equal(t, "T2", first.Title)
	setCallsAfterFirst := len(editor.setCalls)

	engine.OnExternalDraftChange(push)

	second := engine.State()
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.Title, second.Title)
	assert.False(t, second.HasUnsavedChanges)
	assert.Len(t, editor.setCalls, setCallsAfterFirst, "identical push must not re-render or move the cursor")
}

func TestBlurScenarioHelloWorld(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "Hello"}}
	engine := newTestEngine(t, store, nil, 2*time.Second)

	engine.OnUserInput("Hello world", nil, nil)
	require.True(t, engine.State().HasUnsavedChanges)

	// Blur before the debounce window elapses.
	require.NoError(t, engine.OnEditorFocusLost(context.Background()))

	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Hello world", calls[0].Content)
	assert.False(t, engine.State().HasUnsavedChanges)
}

func TestPersistFailureKeepsLocalChanges(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "Hello"}}
	store.setErr(errors.New("503 from upstream"))
	engine := newTestEngine(t, store, nil, time.Hour)

	engine.OnUserInput("Hello again", nil, nil)
	err := engine.Flush(context.Background())
	require.Error(t, err)

	st := engine.State()
	assert.True(t, st.HasUnsavedChanges, "failed persist must keep the dirty flag")
	assert.Equal(t, "Hello again", st.Content)
	assert.Nil(t, st.LastSavedAt)

	// No retry loop: recovery happens on the next explicit attempt.
	store.setErr(nil)
	require.NoError(t, engine.Flush(context.Background()))
	assert.False(t, engine.State().HasUnsavedChanges)
}

func TestPersistCallsAreSerialized(t *testing.T) {
	store := &fakeStore{
		draft:       entity.Draft{Id: "d1", Content: ""},
		updateDelay: 100 * time.Millisecond,
	}
	engine := newTestEngine(t, store, nil, time.Hour)

	engine.OnUserInput("v1", nil, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, engine.Flush(context.Background()))
	}()

	// While the first persist is in flight, keep editing and flush again.
	time.Sleep(20 * time.Millisecond)
	engine.OnUserInput("v2", nil, nil)
	engine.OnUserInput("v3", nil, nil)
	require.NoError(t, engine.Flush(context.Background()))
	wg.Wait()

	store.mu.Lock()
	maxConcurrent := store.maxConcurrent
	store.mu.Unlock()
	assert.Equal(t, 1, maxConcurrent, "persists must never overlap")

	calls := store.calls()
	require.NotEmpty(t, calls)
	assert.LessOrEqual(t, len(calls), 2, "intermediate versions are coalesced")
	assert.Equal(t, "v3", calls[len(calls)-1].Content, "the latest buffer wins")
}

func TestDeferredExternalUpdateAppliedOnCleanBlur(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Title: "T", Content: "Hello"}}
	engine := newTestEngine(t, store, nil, time.Hour)

	// Focus without diverging from the saved text.
	engine.OnUserInput("Hello", nil, nil)
	require.False(t, engine.State().HasUnsavedChanges)

	engine.OnExternalDraftChange(&entity.Draft{Id: "d1", Title: "T", Content: "server rewrite"})
	assert.Equal(t, "Hello", engine.State().Content, "still editing, push deferred")

	require.NoError(t, engine.OnEditorFocusLost(context.Background()))
	assert.Equal(t, "server rewrite", engine.State().Content, "deferred push lands once editing ends")
	assert.Empty(t, store.calls())
}

func TestDirtyBlurSupersedesDeferredExternalUpdate(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "Hello"}}
	engine := newTestEngine(t, store, nil, time.Hour)

	engine.OnUserInput("Hello, mine", nil, nil)
	engine.OnExternalDraftChange(&entity.Draft{Id: "d1", Content: "server rewrite"})

	require.NoError(t, engine.OnEditorFocusLost(context.Background()))

	st := engine.State()
	assert.Equal(t, "Hello, mine", st.Content, "the just-saved buffer outranks the stale push")
	require.Len(t, store.calls(), 1)
}

func TestCursorClampedAndRestoredAfterReplace(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "line one\nline two is long"}}
	editor := &fakeEditor{pos: entity.CursorPosition{Line: 1, Column: 16}, hasPos: true}
	engine := newTestEngine(t, store, editor, time.Hour)

	engine.OnExternalDraftChange(&entity.Draft{Id: "d1", Content: "short"})

	editor.mu.Lock()
	defer editor.mu.Unlock()
	require.NotEmpty(t, editor.setCalls)
	restored := editor.setCalls[len(editor.setCalls)-1]
	assert.Equal(t, 0, restored.Line)
	assert.Equal(t, 5, restored.Column, "column clamped to the new line length")
}

func TestRefreshWhileEditingKeepsBufferButReconcilesReferences(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{
		Id:      "d1",
		Content: "server content",
		References: []entity.Reference{
			{Id: "r9", Citation: "Fresh citation"},
		},
	}}
	engine := newTestEngine(t, store, nil, time.Hour)

	engine.OnUserInput("local edit", nil, nil)
	require.NoError(t, engine.Refresh(context.Background()))

	st := engine.State()
	assert.Equal(t, "local edit", st.Content)
	require.Len(t, st.References, 1)
	assert.Equal(t, "r9", st.References[0].Id)
}

func TestRefreshReplacesWhenIdle(t *testing.T) {
	store := &fakeStore{draft: entity.Draft{Id: "d1", Content: "canonical"}}
	engine := newTestEngine(t, store, nil, time.Hour)

	require.NoError(t, engine.Refresh(context.Background()))
	assert.Equal(t, "canonical", engine.State().Content)
}

func TestClampCursor(t *testing.T) {
	tests := []struct {
		name    string
		content string
		pos     entity.CursorPosition
		want    entity.CursorPosition
	}{
		{
			name:    "within bounds",
			content: "hello\nworld",
			pos:     entity.CursorPosition{Line: 1, Column: 3},
			want:    entity.CursorPosition{Line: 1, Column: 3},
		},
		{
			name:    "line past end",
			content: "only line",
			pos:     entity.CursorPosition{Line: 5, Column: 2},
			want:    entity.CursorPosition{Line: 0, Column: 2},
		},
		{
			name:    "column past line length",
			content: "ab\ncd",
			pos:     entity.CursorPosition{Line: 1, Column: 10},
			want:    entity.CursorPosition{Line: 1, Column: 2},
		},
		{
			name:    "negative position",
			content: "text",
			pos:     entity.CursorPosition{Line: -1, Column: -4},
			want:    entity.CursorPosition{Line: 0, Column: 0},
		},
		{
			name:    "multibyte runes counted not bytes",
			content: "héllo",
			pos:     entity.CursorPosition{Line: 0, Column: 99},
			want:    entity.CursorPosition{Line: 0, Column: 5},
		},
		{
			name:    "empty content",
			content: "",
			pos:     entity.CursorPosition{Line: 3, Column: 3},
			want:    entity.CursorPosition{Line: 0, Column: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampCursor(tt.content, tt.pos)
			if got != tt.want {
				t.Errorf("clampCursor() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
