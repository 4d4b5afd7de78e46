// Package memstore provides an in-memory plan store, used in tests and as
// the default storage driver when no database is configured.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Aristman/ride-core/internal/domain"
	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/storage"
)

// Store keeps plans in a mutex-guarded map. All reads and writes operate on
// deep copies, so callers never share memory with the store.
type Store struct {
	mu    sync.RWMutex
	plans map[string]*plan.Plan
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{plans: make(map[string]*plan.Plan)}
}

func (s *Store) Save(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.plans[p.ID]; exists {
		return fmt.Errorf("%w: plan %s already exists", domain.ErrConflict, p.ID)
	}
	s.plans[p.ID] = p.Clone()
	return nil
}

func (s *Store) Load(_ context.Context, id string) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, fmt.Errorf("%w: plan %s", domain.ErrNotFound, id)
	}
	return p.Clone(), nil
}

func (s *Store) Update(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.plans[p.ID]
	if !ok {
		return fmt.Errorf("%w: plan %s", domain.ErrNotFound, p.ID)
	}
	if stored.Version != p.Version {
		return fmt.Errorf("%w: plan %s version %d, have %d",
			domain.ErrConflict, p.ID, stored.Version, p.Version)
	}
	p.Version++
	s.plans[p.ID] = p.Clone()
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return fmt.Errorf("%w: plan %s", domain.ErrNotFound, id)
	}
	delete(s.plans, id)
	return nil
}

func (s *Store) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.plans[id]
	return ok, nil
}

func (s *Store) ListActive(_ context.Context) ([]plan.Plan, error) {
	return s.collect(func(p *plan.Plan) bool { return !p.State.IsFinished() }), nil
}

func (s *Store) ListByState(_ context.Context, state plan.State) ([]plan.Plan, error) {
	return s.collect(func(p *plan.Plan) bool { return p.State == state }), nil
}

func (s *Store) ListFinished(_ context.Context, states []plan.State, limit, offset int) ([]plan.Plan, error) {
	match := func(p *plan.Plan) bool {
		if !p.State.IsFinished() {
			return false
		}
		if len(states) == 0 {
			return true
		}
		for _, st := range states {
			if p.State == st {
				return true
			}
		}
		return false
	}

	results := s.collect(match)
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	if offset >= len(results) {
		return nil, nil
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results, nil
}

func (s *Store) SearchByRequest(_ context.Context, query string) ([]plan.Plan, error) {
	q := strings.ToLower(query)
	return s.collect(func(p *plan.Plan) bool {
		return strings.Contains(strings.ToLower(p.Request), q)
	}), nil
}

func (s *Store) FindByTimeRange(_ context.Context, from, to time.Time) ([]plan.Plan, error) {
	return s.collect(func(p *plan.Plan) bool {
		return !p.CreatedAt.Before(from) && !p.CreatedAt.After(to)
	}), nil
}

func (s *Store) Cleanup(_ context.Context, olderThan time.Duration, states []plan.State) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	inStates := func(st plan.State) bool {
		if len(states) == 0 {
			return st.IsFinished()
		}
		for _, want := range states {
			if st == want {
				return true
			}
		}
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, p := range s.plans {
		if !inStates(p.State) {
			continue
		}
		ref := p.UpdatedAt
		if p.CompletedAt != nil {
			ref = *p.CompletedAt
		}
		if ref.Before(cutoff) {
			delete(s.plans, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Stats(_ context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{ByState: make(map[plan.State]int)}
	for _, p := range s.plans {
		stats.Total++
		stats.ByState[p.State]++
		if stats.Oldest.IsZero() || p.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = p.CreatedAt
		}
		if p.CreatedAt.After(stats.Newest) {
			stats.Newest = p.CreatedAt
		}
		if data, err := json.Marshal(p); err == nil {
			stats.SizeBytes += int64(len(data))
		}
	}
	return stats, nil
}

func (s *Store) Backup(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans := make([]*plan.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].ID < plans[j].ID })
	return json.MarshalIndent(plans, "", "  ")
}

func (s *Store) Restore(_ context.Context, data []byte) error {
	var plans []*plan.Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		return fmt.Errorf("decode backup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[string]*plan.Plan, len(plans))
	for _, p := range plans {
		s.plans[p.ID] = p
	}
	return nil
}

func (s *Store) collect(match func(*plan.Plan) bool) []plan.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []plan.Plan
	for _, p := range s.plans {
		if match(p) {
			results = append(results, *p.Clone())
		}
	}
	return results
}
