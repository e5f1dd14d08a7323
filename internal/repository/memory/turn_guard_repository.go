package memory

import (
	"time"

	"ai-assistant-be/pkg/store"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// TurnGuardRepository tracks conversations that have a turn in flight so a
// second concurrent turn on the same conversation can be rejected early.
// Entries expire on their own in case a crashed turn never releases.
type TurnGuardRepository struct {
	cache *cache.Cache
}

func NewTurnGuardRepository(ttl time.Duration) *TurnGuardRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := cache.New(ttl, ttl/2)
	return &TurnGuardRepository{
		cache: c,
	}
}

// Acquire returns false when a turn is already running for the conversation.
func (r *TurnGuardRepository) Acquire(conversationId uuid.UUID, state *store.TurnState) bool {
	return r.cache.Add(conversationId.String(), state, cache.DefaultExpiration) == nil
}

func (r *TurnGuardRepository) Get(conversationId uuid.UUID) (*store.TurnState, bool) {
	if x, found := r.cache.Get(conversationId.String()); found {
		return x.(*store.TurnState), true
	}
	return nil, false
}

func (r *TurnGuardRepository) Release(conversationId uuid.UUID) {
	r.cache.Delete(conversationId.String())
}
