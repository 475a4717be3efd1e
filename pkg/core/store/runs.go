package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrRunNotFound is returned when no run matches.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one stored extraction run. Payload holds the initial,
// alternative and critique outputs as JSON.
type RunRecord struct {
	ID        string          `json:"id"`
	Company   string          `json:"company"`
	FieldID   string          `json:"field_id"`
	FieldType string          `json:"field_type"`
	Mock      bool            `json:"mock"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// RunRepository stores extraction runs.
type RunRepository interface {
	Save(ctx context.Context, run *RunRecord) error
	// Latest returns the most recent run of a field for a company.
	Latest(ctx context.Context, company, fieldID string) (*RunRecord, error)
	List(ctx context.Context, company string, limit int) ([]*RunRecord, error)
}

// =============================================================================
// POSTGRES
// =============================================================================

const runsSchema = `
CREATE TABLE IF NOT EXISTS extraction_runs (
	id          TEXT PRIMARY KEY,
	company     TEXT NOT NULL,
	field_id    TEXT NOT NULL,
	field_type  TEXT NOT NULL,
	mock        BOOLEAN NOT NULL DEFAULT FALSE,
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS extraction_runs_company_field_idx
	ON extraction_runs (company, field_id, created_at DESC);
`

// RunRepo stores runs in the extraction_runs table of the shared pool.
type RunRepo struct{}

// NewRunRepo creates a new repository instance.
func NewRunRepo() *RunRepo {
	return &RunRepo{}
}

var _ RunRepository = (*RunRepo)(nil)

// EnsureSchema creates the table when missing.
func (r *RunRepo) EnsureSchema(ctx context.Context) error {
	pool := GetPool()
	if pool == nil {
		return ErrNotInitialized
	}
	if _, err := pool.Exec(ctx, runsSchema); err != nil {
		return fmt.Errorf("failed to create extraction_runs: %w", err)
	}
	return nil
}

// Save upserts a run by id.
func (r *RunRepo) Save(ctx context.Context, run *RunRecord) error {
	pool := GetPool()
	if pool == nil {
		return ErrNotInitialized
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO extraction_runs (id, company, field_id, field_type, mock, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			mock = EXCLUDED.mock,
			created_at = EXCLUDED.created_at;
	`
	_, err := pool.Exec(ctx, query, run.ID, run.Company, run.FieldID, run.FieldType, run.Mock, []byte(run.Payload), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (r *RunRepo) Latest(ctx context.Context, company, fieldID string) (*RunRecord, error) {
	pool := GetPool()
	if pool == nil {
		return nil, ErrNotInitialized
	}

	query := `
		SELECT id, company, field_id, field_type, mock, payload, created_at
		FROM extraction_runs
		WHERE company = $1 AND field_id = $2
		ORDER BY created_at DESC
		LIMIT 1`
	run, err := scanRun(pool.QueryRow(ctx, query, company, fieldID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrRunNotFound, company, fieldID)
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

func (r *RunRepo) List(ctx context.Context, company string, limit int) ([]*RunRecord, error) {
	pool := GetPool()
	if pool == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := pool.Query(ctx, `
		SELECT id, company, field_id, field_type, mock, payload, created_at
		FROM extraction_runs
		WHERE company = $1
		ORDER BY created_at DESC
		LIMIT $2`, company, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (*RunRecord, error) {
	var (
		run     RunRecord
		payload []byte
	)
	if err := row.Scan(&run.ID, &run.Company, &run.FieldID, &run.FieldType, &run.Mock, &payload, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Payload = payload
	return &run, nil
}

// =============================================================================
// IN-MEMORY (no DATABASE_URL)
// =============================================================================

// MemoryRunRepo keeps runs in process.
type MemoryRunRepo struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
}

func NewMemoryRunRepo() *MemoryRunRepo {
	return &MemoryRunRepo{runs: make(map[string]*RunRecord)}
}

var _ RunRepository = (*MemoryRunRepo)(nil)

func (m *MemoryRunRepo) Save(_ context.Context, run *RunRecord) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	cp := *run
	m.mu.Lock()
	m.runs[run.ID] = &cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryRunRepo) Latest(ctx context.Context, company, fieldID string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *RunRecord
	for _, r := range m.runs {
		if r.Company != company || r.FieldID != fieldID {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) {
			best = r
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrRunNotFound, company, fieldID)
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryRunRepo) List(_ context.Context, company string, limit int) ([]*RunRecord, error) {
	m.mu.RLock()
	var out []*RunRecord
	for _, r := range m.runs {
		if r.Company == company {
			cp := *r
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
