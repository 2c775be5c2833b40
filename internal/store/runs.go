package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a recorded run.
type Status string

const (
	StatusStarted  Status = "started"
	StatusPrepared Status = "prepared"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
)

// ErrNotFound is returned when no run has the requested ID.
var ErrNotFound = errors.New("run not found")

// IDGenerator produces run identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates random UUIDv4 strings.
type UUIDGenerator struct{}

// Generate implements IDGenerator.
func (UUIDGenerator) Generate() string { return uuid.NewString() }

// Run is one ledger row.
type Run struct {
	ID        string
	Seq       int64
	Dataset   string
	TheoryID  int
	Provider  string
	PDF       string
	Dest      string
	Timestamp string
	Status    Status
	Grid      string
	Error     string
	StartedAt time.Time
	UpdatedAt time.Time
	Versions  map[string]string
}

const timeLayout = time.RFC3339Nano

// CreateRun inserts run with a fresh ID from ids and the next sequence
// number. ID, Seq and the timestamps are filled in on run.
func (s *Store) CreateRun(ctx context.Context, ids IDGenerator, run *Run, now time.Time) error {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	run.ID = ids.Generate()
	if run.Status == "" {
		run.Status = StatusStarted
	}
	run.StartedAt = now.UTC()
	run.UpdatedAt = run.StartedAt

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO runs (id, seq, dataset, theory_id, provider, pdf, dest, timestamp,
		                  status, grid, error, started_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq
	`, run.ID, run.Dataset, run.TheoryID, run.Provider, run.PDF, run.Dest, run.Timestamp,
		string(run.Status), run.Grid, run.Error,
		run.StartedAt.Format(timeLayout), run.UpdatedAt.Format(timeLayout),
	).Scan(&run.Seq)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateStatus sets the status, grid path and error message of a run.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status, gridPath, message string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, grid = ?, error = ?, updated_at = ? WHERE id = ?
	`, string(status), gridPath, message, now.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update run %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetVersions replaces the version map of a run.
func (s *Store) SetVersions(ctx context.Context, id string, versions map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_versions WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("clear versions of %s: %w", id, err)
	}
	for name, value := range versions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_versions (run_id, name, value) VALUES (?, ?, ?)
		`, id, name, value); err != nil {
			return fmt.Errorf("insert version %s of %s: %w", name, id, err)
		}
	}
	return tx.Commit()
}

// GetRun returns the run with the given ID, including its versions.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	if run.Versions, err = s.versions(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListFilter restricts ListRuns. Zero fields match everything.
type ListFilter struct {
	Dataset  string
	TheoryID *int
	Limit    int
}

// ListRuns returns runs in sequence order. Versions are not loaded.
func (s *Store) ListRuns(ctx context.Context, filter ListFilter) ([]*Run, error) {
	query := selectRuns + ` WHERE (? = '' OR dataset = ?) AND (? = 0 OR theory_id = ?) ORDER BY seq ASC`
	hasTheory, theory := 0, 0
	if filter.TheoryID != nil {
		hasTheory, theory = 1, *filter.TheoryID
	}
	args := []any{filter.Dataset, filter.Dataset, hasTheory, theory}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestTimestamp returns the timestamp of the most recent successful run of
// dataset under theoryID, or "" when there is none.
func (s *Store) LatestTimestamp(ctx context.Context, dataset string, theoryID int) (string, error) {
	var ts string
	err := s.db.QueryRowContext(ctx, `
		SELECT timestamp FROM runs
		WHERE dataset = ? AND theory_id = ? AND status = ?
		ORDER BY seq DESC LIMIT 1
	`, dataset, theoryID, string(StatusDone)).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest timestamp of %s: %w", dataset, err)
	}
	return ts, nil
}

func (s *Store) versions(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value FROM run_versions WHERE run_id = ? ORDER BY name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query versions of %s: %w", id, err)
	}
	defer rows.Close()

	versions := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions[name] = value
	}
	return versions, rows.Err()
}

const selectRuns = `
	SELECT id, seq, dataset, theory_id, provider, pdf, dest, timestamp,
	       status, grid, error, started_at, updated_at
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run              Run
		status           string
		started, updated string
	)
	if err := row.Scan(&run.ID, &run.Seq, &run.Dataset, &run.TheoryID, &run.Provider,
		&run.PDF, &run.Dest, &run.Timestamp, &status, &run.Grid, &run.Error,
		&started, &updated); err != nil {
		return nil, err
	}
	run.Status = Status(status)

	var err error
	if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if run.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &run, nil
}
