package leads

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/m3rciful/funnelbot/core/logger"
)

// Registry is the in-memory lead set in front of a Store.
type Registry struct {
	store Store
	extra []int64

	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewRegistry builds a registry. store may be nil for a memory-only set;
// extra ids are always part of All but never persisted.
func NewRegistry(store Store, extra []int64) *Registry {
	return &Registry{store: store, extra: extra, ids: map[int64]struct{}{}}
}

// Load fills the registry from the store.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	ids, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	for _, id := range ids {
		r.ids[id] = struct{}{}
	}
	r.mu.Unlock()
	logger.Info(ctx, logger.CompLeads, "leads.loaded", slog.Int("count", len(ids)))
	return nil
}

// Remember adds userID. Persistence failures are logged, the id stays in memory.
func (r *Registry) Remember(ctx context.Context, userID int64) {
	if userID == 0 {
		return
	}
	r.mu.Lock()
	_, known := r.ids[userID]
	r.ids[userID] = struct{}{}
	r.mu.Unlock()
	if known || r.store == nil {
		return
	}
	if err := r.store.Put(ctx, userID); err != nil {
		logger.Warn(logger.WithUser(ctx, userID), logger.CompLeads, "leads.persist", slog.String("status", "fail"), logger.Err(err))
	}
}

// All returns remembered and extra ids, deduplicated and sorted.
func (r *Registry) All() []int64 {
	r.mu.RLock()
	set := make(map[int64]struct{}, len(r.ids)+len(r.extra))
	for id := range r.ids {
		set[id] = struct{}{}
	}
	r.mu.RUnlock()
	for _, id := range r.extra {
		if id != 0 {
			set[id] = struct{}{}
		}
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
