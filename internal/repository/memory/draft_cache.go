package memory

import (
	"time"

	"draftsync/internal/entity"

	"github.com/patrickmn/go-cache"
)

// DraftCache holds the shared Draft records per writing session. Persist
// successes and external replaces write through here, so observers read
// the saved state without a round trip to the backend.
type DraftCache struct {
	cache *cache.Cache
}

func NewDraftCache(idleTTL time.Duration) *DraftCache {
	if idleTTL <= 0 {
		idleTTL = 1 * time.Hour
	}
	// Expired sessions are purged every 10 minutes; an expiry only drops the
	// cached canonical record, never unsaved local state (that lives in the
	// engine itself).
	c := cache.New(idleTTL, 10*time.Minute)
	return &DraftCache{
		cache: c,
	}
}

func (r *DraftCache) Put(sessionId string, draft *entity.Draft) {
	snapshot := *draft
	r.cache.Set(sessionId, &snapshot, cache.DefaultExpiration)
}

func (r *DraftCache) Get(sessionId string) (*entity.Draft, bool) {
	if x, found := r.cache.Get(sessionId); found {
		return x.(*entity.Draft), true
	}
	return nil, false
}

func (r *DraftCache) Delete(sessionId string) {
	r.cache.Delete(sessionId)
}
