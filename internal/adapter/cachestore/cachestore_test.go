package cachestore_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Aristman/ride-core/internal/adapter/cachestore"
	"github.com/Aristman/ride-core/internal/adapter/memstore"
	"github.com/Aristman/ride-core/internal/domain"
	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/storage"
)

// countingStore counts Load calls through to the wrapped store.
type countingStore struct {
	storage.Store
	mu    sync.Mutex
	loads int
}

func (c *countingStore) Load(ctx context.Context, id string) (*plan.Plan, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	return c.Store.Load(ctx, id)
}

func (c *countingStore) loadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func newCached(t *testing.T) (*cachestore.Store, *countingStore) {
	t.Helper()
	inner := &countingStore{Store: memstore.New()}
	cached, err := cachestore.Wrap(inner, 1<<20)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	t.Cleanup(cached.Close)
	return cached, inner
}

func testPlan(id string) *plan.Plan {
	return &plan.Plan{
		ID:      id,
		Request: "scan it",
		State:   plan.StateCreated,
		Version: 1,
		Steps: []plan.Step{
			{ID: "scan", Capability: plan.CapabilityScanner, Status: plan.StepStatusPending},
		},
	}
}

func TestLoadServedFromCache(t *testing.T) {
	cached, inner := newCached(t)
	ctx := context.Background()

	if err := cached.Save(ctx, testPlan("p1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	// The first read goes to the inner store and primes the cache.
	if _, err := cached.Load(ctx, "p1"); err != nil {
		t.Fatalf("priming load: %v", err)
	}
	cached.Wait()

	for i := 0; i < 3; i++ {
		p, err := cached.Load(ctx, "p1")
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if p.ID != "p1" {
			t.Fatalf("wrong plan: %s", p.ID)
		}
	}
	if n := inner.loadCount(); n != 1 {
		t.Fatalf("repeat loads should hit the cache, inner saw %d loads", n)
	}
}

func TestLoadMissFallsThrough(t *testing.T) {
	cached, inner := newCached(t)
	ctx := context.Background()

	// Written behind the decorator's back.
	if err := inner.Store.Save(ctx, testPlan("p1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := cached.Load(ctx, "p1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if n := inner.loadCount(); n != 1 {
		t.Fatalf("expected one inner load, got %d", n)
	}
	cached.Wait()

	if _, err := cached.Load(ctx, "p1"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if n := inner.loadCount(); n != 1 {
		t.Fatalf("second load should hit the cache, inner saw %d", n)
	}
}

func TestUpdateRefreshesCache(t *testing.T) {
	cached, inner := newCached(t)
	ctx := context.Background()

	p := testPlan("p1")
	if err := cached.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Prime the cache with the v1 entry.
	if _, err := cached.Load(ctx, "p1"); err != nil {
		t.Fatalf("priming load: %v", err)
	}
	cached.Wait()

	p.State = plan.StateAnalyzing
	if err := cached.Update(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := cached.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.State != plan.StateAnalyzing || got.Version != 2 {
		t.Fatalf("stale cache entry: %s v%d", got.State, got.Version)
	}
	if n := inner.loadCount(); n != 2 {
		t.Fatalf("update should invalidate the cached entry, inner saw %d loads", n)
	}
}

func TestRapidWritesNeverServeStale(t *testing.T) {
	cached, _ := newCached(t)
	ctx := context.Background()

	// Back-to-back writes with no settling time between them must never
	// leave an older revision readable.
	for i := 0; i < 20; i++ {
		p := testPlan("p" + strconv.Itoa(i))
		if err := cached.Save(ctx, p); err != nil {
			t.Fatalf("save %s: %v", p.ID, err)
		}
		p.State = plan.StateAnalyzing
		if err := cached.Update(ctx, p); err != nil {
			t.Fatalf("update %s: %v", p.ID, err)
		}

		got, err := cached.Load(ctx, p.ID)
		if err != nil {
			t.Fatalf("load %s: %v", p.ID, err)
		}
		if got.Version != 2 {
			t.Fatalf("plan %s served stale: v%d", p.ID, got.Version)
		}
	}
}

func TestDeleteEvicts(t *testing.T) {
	cached, _ := newCached(t)
	ctx := context.Background()

	if err := cached.Save(ctx, testPlan("p1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := cached.Load(ctx, "p1"); err != nil {
		t.Fatalf("priming load: %v", err)
	}
	cached.Wait()
	if err := cached.Delete(ctx, "p1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := cached.Load(ctx, "p1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if ok, _ := cached.Exists(ctx, "p1"); ok {
		t.Fatal("deleted plan still reported as existing")
	}
}

func TestRestoreClearsCache(t *testing.T) {
	cached, inner := newCached(t)
	ctx := context.Background()

	if err := cached.Save(ctx, testPlan("p1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := cached.Load(ctx, "p1"); err != nil {
		t.Fatalf("priming load: %v", err)
	}
	cached.Wait()

	data, err := cached.Backup(ctx)
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if err := cached.Restore(ctx, data); err != nil {
		t.Fatalf("restore: %v", err)
	}

	// The cleared cache forces a fresh read from the restored store.
	if _, err := cached.Load(ctx, "p1"); err != nil {
		t.Fatalf("load after restore: %v", err)
	}
	if n := inner.loadCount(); n != 2 {
		t.Fatalf("expected a fresh inner load after restore, got %d", n)
	}

	// Cleanup with no old plans leaves the cache alone.
	removed, err := cached.Cleanup(ctx, time.Hour, nil)
	if err != nil || removed != 0 {
		t.Fatalf("cleanup: %d, %v", removed, err)
	}
}
