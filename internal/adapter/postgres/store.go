package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Aristman/ride-core/internal/domain"
	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/storage"
)

// Store implements storage.Store on PostgreSQL. The plan document lives in a
// JSONB column; state, version and timestamps are mirrored into columns for
// indexing and optimistic concurrency.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Save(ctx context.Context, p *plan.Plan) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO plans (id, state, version, request, doc, created_at, completed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, string(p.State), p.Version, p.Request, doc, p.CreatedAt, p.CompletedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save plan %s: %w", p.ID, domain.ErrConflict)
		}
		return fmt.Errorf("save plan %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*plan.Plan, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM plans WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load plan %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load plan %s: %w", id, err)
	}

	var p plan.Plan
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("unmarshal plan %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) Update(ctx context.Context, p *plan.Plan) error {
	next := *p
	next.Version = p.Version + 1
	doc, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE plans SET state = $2, version = $3, request = $4, doc = $5, completed_at = $6, updated_at = $7
		 WHERE id = $1 AND version = $8`,
		p.ID, string(next.State), next.Version, next.Request, doc, next.CompletedAt, next.UpdatedAt, p.Version)
	if err != nil {
		return fmt.Errorf("update plan %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		exists, xerr := s.Exists(ctx, p.ID)
		if xerr == nil && !exists {
			return fmt.Errorf("update plan %s: %w", p.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("update plan %s: %w", p.ID, domain.ErrConflict)
	}
	p.Version = next.Version
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete plan %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM plans WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("plan exists %s: %w", id, err)
	}
	return exists, nil
}

var finishedStates = []string{
	string(plan.StateCompleted),
	string(plan.StateFailed),
	string(plan.StateCancelled),
}

func (s *Store) ListActive(ctx context.Context) ([]plan.Plan, error) {
	return s.query(ctx,
		`SELECT doc FROM plans WHERE state != ALL($1) ORDER BY created_at DESC`, finishedStates)
}

func (s *Store) ListByState(ctx context.Context, state plan.State) ([]plan.Plan, error) {
	return s.query(ctx,
		`SELECT doc FROM plans WHERE state = $1 ORDER BY created_at DESC`, string(state))
}

func (s *Store) ListFinished(ctx context.Context, states []plan.State, limit, offset int) ([]plan.Plan, error) {
	want := finishedStates
	if len(states) > 0 {
		want = want[:0:0]
		for _, st := range states {
			if st.IsFinished() {
				want = append(want, string(st))
			}
		}
	}
	if len(want) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx,
		`SELECT doc FROM plans WHERE state = ANY($1)
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		want, limit, offset)
}

func (s *Store) SearchByRequest(ctx context.Context, query string) ([]plan.Plan, error) {
	return s.query(ctx,
		`SELECT doc FROM plans WHERE request ILIKE '%' || $1 || '%' ORDER BY created_at DESC`, query)
}

func (s *Store) FindByTimeRange(ctx context.Context, from, to time.Time) ([]plan.Plan, error) {
	return s.query(ctx,
		`SELECT doc FROM plans WHERE created_at >= $1 AND created_at <= $2 ORDER BY created_at DESC`, from, to)
}

func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration, states []plan.State) (int, error) {
	want := finishedStates
	if len(states) > 0 {
		want = make([]string, len(states))
		for i, st := range states {
			want[i] = string(st)
		}
	}
	cutoff := time.Now().Add(-olderThan)

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM plans WHERE state = ANY($1) AND COALESCE(completed_at, updated_at) < $2`,
		want, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup plans: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{ByState: make(map[plan.State]int)}

	rows, err := s.pool.Query(ctx, `SELECT state, count(*) FROM plans GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("plan stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByState[plan.State(state)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var oldest, newest *time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pg_column_size(doc)), 0), MIN(created_at), MAX(created_at) FROM plans`,
	).Scan(&stats.SizeBytes, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("plan stats sizes: %w", err)
	}
	if oldest != nil {
		stats.Oldest = *oldest
	}
	if newest != nil {
		stats.Newest = *newest
	}
	return stats, nil
}

func (s *Store) Backup(ctx context.Context) ([]byte, error) {
	plans, err := s.query(ctx, `SELECT doc FROM plans ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(plans, "", "  ")
}

func (s *Store) Restore(ctx context.Context, data []byte) error {
	var plans []plan.Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		return fmt.Errorf("decode backup: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `DELETE FROM plans`); err != nil {
		return fmt.Errorf("clear plans: %w", err)
	}
	for i := range plans {
		p := &plans[i]
		doc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal plan %s: %w", p.ID, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO plans (id, state, version, request, doc, created_at, completed_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, string(p.State), p.Version, p.Request, doc, p.CreatedAt, p.CompletedAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("restore plan %s: %w", p.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]plan.Plan, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		var p plan.Plan
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
