package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/radaudit/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dsn); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "sqlite: create db dir")
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	case_label TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	overall_score INTEGER NOT NULL,
	severity TEXT NOT NULL,
	model_version TEXT NOT NULL DEFAULT '',
	image_hash TEXT NOT NULL DEFAULT '',
	report_hash TEXT NOT NULL DEFAULT '',
	result TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS batches (
	batch_id TEXT PRIMARY KEY,
	source TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	completed_at DATETIME,
	total_cases INTEGER NOT NULL DEFAULT 0,
	completed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	result TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS batch_runs (
	batch_id TEXT NOT NULL REFERENCES batches(batch_id) ON DELETE CASCADE,
	case_id TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (batch_id, case_id)
);
CREATE TABLE IF NOT EXISTS audit_events (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL DEFAULT '',
	batch_id TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL DEFAULT 'system',
	event_type TEXT NOT NULL,
	detail TEXT,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_severity ON runs(severity);
CREATE INDEX IF NOT EXISTS idx_audit_events_run_id ON audit_events(run_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_batch_id ON audit_events(batch_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, result *model.AuditResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, case_label, created_at, overall_score, severity, model_version, image_hash, report_hash, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			case_label = excluded.case_label,
			overall_score = excluded.overall_score,
			severity = excluded.severity,
			result = excluded.result`,
		result.RunID, result.CaseLabel, result.CreatedAt.UTC(), result.OverallScore, string(result.Severity),
		result.ModelVersion, result.ImageHash, result.ReportHash, string(resultJSON),
	)
	return eris.Wrapf(err, "sqlite: save run %s", result.RunID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.AuditResult, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM runs WHERE run_id = ?`, runID).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	var r model.AuditResult
	if err := json.Unmarshal([]byte(resultJSON), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result")
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := `SELECT run_id, case_label, created_at, overall_score, severity, model_version FROM runs WHERE 1=1`
	var args []any

	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limitOr(filter.Limit, 100))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.RunID, &r.CaseLabel, &r.CreatedAt, &r.OverallScore, &r.Severity, &r.ModelVersion); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) LogEvent(ctx context.Context, event model.Event) error {
	event = withEventDefaults(event)

	var detail sql.NullString
	if len(event.Detail) > 0 {
		data, err := json.Marshal(event.Detail)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal event detail")
		}
		detail = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, run_id, batch_id, actor, event_type, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.RunID, event.BatchID, event.Actor, event.Type, detail, event.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert event")
}

func (s *SQLiteStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	query := `SELECT id, run_id, batch_id, actor, event_type, detail, created_at FROM audit_events WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var detail sql.NullString
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.BatchID, &ev.Actor, &ev.Type, &detail, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &ev.Detail); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal event detail")
			}
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) SaveBatch(ctx context.Context, batch *model.BatchResult) error {
	resultJSON, err := json.Marshal(batch)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal batch")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var completedAt sql.NullTime
	if !batch.CompletedAt.IsZero() {
		completedAt = sql.NullTime{Time: batch.CompletedAt.UTC(), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batches (batch_id, source, created_at, completed_at, total_cases, completed, failed, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(batch_id) DO UPDATE SET
			completed_at = excluded.completed_at,
			total_cases = excluded.total_cases,
			completed = excluded.completed,
			failed = excluded.failed,
			result = excluded.result`,
		batch.BatchID, batch.Source, batch.CreatedAt.UTC(), completedAt,
		batch.Summary.TotalCases, batch.Summary.Completed, batch.Summary.Failed, string(resultJSON),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save batch %s", batch.BatchID)
	}

	for _, c := range batch.Cases {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO batch_runs (batch_id, case_id, run_id) VALUES (?, ?, ?)
			 ON CONFLICT(batch_id, case_id) DO UPDATE SET run_id = excluded.run_id`,
			batch.BatchID, c.CaseID, c.RunID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: link batch case %s", c.CaseID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit batch")
}

func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (*model.BatchResult, error) {
	var resultJSON string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM batches WHERE batch_id = ?`, batchID).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: batch %s", batchID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get batch %s", batchID)
	}

	var b model.BatchResult
	if err := json.Unmarshal([]byte(resultJSON), &b); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal batch")
	}
	return &b, nil
}

// BatchRunIDs returns the run ids linked to a batch, keyed by case id
func (s *SQLiteStore) BatchRunIDs(ctx context.Context, batchID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT case_id, run_id FROM batch_runs WHERE batch_id = ?`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batch runs")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var caseID, runID string
		if err := rows.Scan(&caseID, &runID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch run")
		}
		out[caseID] = runID
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list batch runs iterate")
}
