// Package cachestore decorates a plan store with a ristretto read-through
// cache keyed by plan ID.
package cachestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/storage"
)

const defaultTTL = 5 * time.Minute

// Store serves Load from an in-process cache and delegates everything else
// to the wrapped store. Writes invalidate the cached entry.
type Store struct {
	inner storage.Store
	cache *ristretto.Cache[string, []byte]
}

var _ storage.Store = (*Store)(nil)

// Wrap decorates inner with a cache of at most maxCostBytes of encoded plans.
func Wrap(inner storage.Store, maxCostBytes int64) (*Store, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Store{inner: inner, cache: c}, nil
}

// Wait blocks until buffered cache writes are applied. Used in tests.
func (s *Store) Wait() {
	s.cache.Wait()
}

func (s *Store) Close() {
	s.cache.Close()
}

func (s *Store) Save(ctx context.Context, p *plan.Plan) error {
	if err := s.inner.Save(ctx, p); err != nil {
		return err
	}
	// Ristretto sets are buffered and may be dropped, so priming the cache
	// here could leave a stale entry after a later write. Invalidate and
	// let the next Load read through.
	s.cache.Del(p.ID)
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*plan.Plan, error) {
	if data, ok := s.cache.Get(id); ok {
		var p plan.Plan
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		s.cache.Del(id)
	}

	p, err := s.inner.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.put(p)
	return p, nil
}

func (s *Store) Update(ctx context.Context, p *plan.Plan) error {
	if err := s.inner.Update(ctx, p); err != nil {
		return err
	}
	s.cache.Del(p.ID)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.inner.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Del(id)
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if _, ok := s.cache.Get(id); ok {
		return true, nil
	}
	return s.inner.Exists(ctx, id)
}

func (s *Store) ListActive(ctx context.Context) ([]plan.Plan, error) {
	return s.inner.ListActive(ctx)
}

func (s *Store) ListByState(ctx context.Context, state plan.State) ([]plan.Plan, error) {
	return s.inner.ListByState(ctx, state)
}

func (s *Store) ListFinished(ctx context.Context, states []plan.State, limit, offset int) ([]plan.Plan, error) {
	return s.inner.ListFinished(ctx, states, limit, offset)
}

func (s *Store) SearchByRequest(ctx context.Context, query string) ([]plan.Plan, error) {
	return s.inner.SearchByRequest(ctx, query)
}

func (s *Store) FindByTimeRange(ctx context.Context, from, to time.Time) ([]plan.Plan, error) {
	return s.inner.FindByTimeRange(ctx, from, to)
}

// Cleanup clears the whole cache: the wrapped store does not report which
// plans it removed.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration, states []plan.State) (int, error) {
	removed, err := s.inner.Cleanup(ctx, olderThan, states)
	if removed > 0 {
		s.cache.Clear()
	}
	return removed, err
}

func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	return s.inner.Stats(ctx)
}

func (s *Store) Backup(ctx context.Context) ([]byte, error) {
	return s.inner.Backup(ctx)
}

func (s *Store) Restore(ctx context.Context, data []byte) error {
	if err := s.inner.Restore(ctx, data); err != nil {
		return err
	}
	s.cache.Clear()
	return nil
}

func (s *Store) put(p *plan.Plan) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	s.cache.SetWithTTL(p.ID, data, int64(len(data)), defaultTTL)
}
