package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"draftsync/internal/dto"
	"draftsync/internal/entity"
	"draftsync/internal/service"

	"github.com/fatih/color"
)

// In-memory stand-in for the upstream backend so the whole editing flow can
// be exercised without a server.
type fakeBackend struct {
	mu    sync.Mutex
	draft entity.Draft
	saves int
}

func (b *fakeBackend) GetDraft(ctx context.Context, sessionId string) (*entity.Draft, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.draft
	return &d, nil
}

func (b *fakeBackend) UpdateDraft(ctx context.Context, sessionId string, req *dto.UpdateDraftRequest) (*entity.Draft, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	b.draft.Content = req.Content
	if req.Title != nil {
		b.draft.Title = *req.Title
	}
	now := time.Now()
	b.draft.UpdatedAt = &now
	d := b.draft
	return &d, nil
}

func (b *fakeBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func main() {
	color.Cyan("🚀 Draft sync engine walkthrough\n")

	backend := &fakeBackend{draft: entity.Draft{
		Id:      "d1",
		Title:   "Untitled",
		Content: "Hello",
	}}

	engine := service.NewDraftSyncService(
		"session-1",
		&backend.draft,
		backend,
		nil, nil, nil, nil,
		300*time.Millisecond, // short debounce so the demo is quick
	)

	ctx := context.Background()

	color.Yellow("\n[1] User types while a debounce window is open")
	engine.OnUserInput("Hello w", nil, &entity.CursorPosition{Line: 0, Column: 7})
	engine.OnUserInput("Hello wo", nil, &entity.CursorPosition{Line: 0, Column: 8})
	engine.OnUserInput("Hello world", nil, &entity.CursorPosition{Line: 0, Column: 11})
	fmt.Printf("    unsaved: %v, backend saves so far: %d\n", engine.State().HasUnsavedChanges, backend.saveCount())

	time.Sleep(600 * time.Millisecond)
	color.Green("    debounce fired once -> backend saves: %d (coalesced)", backend.saveCount())

	color.Yellow("\n[2] External push arrives mid-edit (suppression rule)")
	engine.OnUserInput("Hello world, draft in progress", nil, nil)
	engine.OnExternalDraftChange(&entity.Draft{Id: "d1", Title: "Untitled", Content: "server version"})
	fmt.Printf("    buffer still: %q\n", engine.State().Content)

	color.Yellow("\n[3] Focus lost -> flush-on-blur")
	if err := engine.OnEditorFocusLost(ctx); err != nil {
		color.Red("    blur flush failed: %v", err)
		return
	}
	color.Green("    saved on blur -> unsaved: %v, backend saves: %d",
		engine.State().HasUnsavedChanges, backend.saveCount())

	color.Yellow("\n[4] Session switches to a different draft")
	if err := engine.SwitchDraft(ctx, &entity.Draft{Id: "d2", Title: "Chapter 2", Content: "New document"}); err != nil {
		color.Red("    switch blocked: %v", err)
		return
	}
	st := engine.State()
	color.Green("    now editing %s (%q)", st.DraftId, st.Content)

	engine.Close()
	color.Cyan("\nDone.")
}
