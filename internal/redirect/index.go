package redirect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/IliaW/link-repair-kit/internal/model"
	"github.com/IliaW/link-repair-kit/internal/persistence"
	"golang.org/x/sync/singleflight"
)

// Index is the in-memory view of the redirect table keyed by canonical old_url.
type Index struct {
	store persistence.RedirectStorage
	mu    sync.RWMutex
	rules map[string]*model.RedirectRule
	// version counts local mutations so a reload started before one does not undo it.
	version uint64
	group   singleflight.Group
}

func NewIndex(store persistence.RedirectStorage) *Index {
	return &Index{
		store: store,
		rules: make(map[string]*model.RedirectRule),
	}
}

// Reload replaces the index with the current store content. Concurrent calls share one
// store read. When several rows have the same old_url the one with the lowest id wins.
func (idx *Index) Reload(ctx context.Context) error {
	_, err, _ := idx.group.Do("reload", func() (any, error) {
		idx.mu.RLock()
		started := idx.version
		idx.mu.RUnlock()

		rules, err := idx.store.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		fresh := make(map[string]*model.RedirectRule, len(rules))
		for _, rule := range rules {
			if _, ok := fresh[rule.OldURL]; !ok {
				fresh[rule.OldURL] = rule
			}
		}
		idx.mu.Lock()
		defer idx.mu.Unlock()
		if idx.version != started {
			slog.Debug("redirect index changed during reload, keeping current state.")
			return nil, nil
		}
		idx.rules = fresh
		slog.Debug("redirect index reloaded.", slog.Int("size", len(fresh)))
		return nil, nil
	})
	return err
}

// Refresh reloads the index every interval until ctx is done. Rules changed by other
// instances become visible after at most one interval.
func (idx *Index) Refresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("redirect index refresh stopped.")
			return
		case <-ticker.C:
			if err := idx.Reload(ctx); err != nil {
				slog.Warn("failed to refresh redirect index.", slog.String("err", err.Error()))
			}
		}
	}
}

func (idx *Index) Lookup(canonicalURL string) (*model.RedirectRule, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	rule, ok := idx.rules[canonicalURL]
	return rule, ok
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.rules)
}

func (idx *Index) put(rule *model.RedirectRule) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.rules[rule.OldURL] = rule
	idx.version++
}

func (idx *Index) removeID(id int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.version++
	for old, rule := range idx.rules {
		if rule.ID == id {
			delete(idx.rules, old)
			return
		}
	}
}
