// Package store persists audit runs, batches and audit-trail events.
package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/ppiankov/radaudit/internal/model"
)

// ErrNotFound is returned when a run or batch does not exist
var ErrNotFound = errors.New("store: not found")

// Drivers
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Config selects and configures the storage backend
type Config struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	Dir        string `yaml:"dir" mapstructure:"dir"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Severity model.Severity `json:"severity,omitempty"`
	Limit    int            `json:"limit,omitempty"`
}

// EventFilter selects audit-trail events. Empty fields match everything.
type EventFilter struct {
	RunID   string `json:"run_id,omitempty"`
	BatchID string `json:"batch_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// RunSummary is the listing view of a stored run
type RunSummary struct {
	RunID        string         `json:"run_id"`
	CaseLabel    string         `json:"case_label"`
	CreatedAt    time.Time      `json:"created_at"`
	OverallScore int            `json:"overall_score"`
	Severity     model.Severity `json:"severity"`
	ModelVersion string         `json:"model_version"`
}

// Store defines the persistence interface for audit results.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, result *model.AuditResult) error
	GetRun(ctx context.Context, runID string) (*model.AuditResult, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)

	// Audit trail
	LogEvent(ctx context.Context, event model.Event) error
	ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error)

	// Batches
	SaveBatch(ctx context.Context, batch *model.BatchResult) error
	GetBatch(ctx context.Context, batchID string) (*model.BatchResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens the configured store and migrates it
func New(ctx context.Context, config Config) (Store, error) {
	dir := config.Dir
	if dir == "" {
		dir = "radaudit-storage"
	}

	var (
		s   Store
		err error
	)
	switch strings.ToLower(config.Driver) {
	case "", DriverFile:
		s = NewFileStore(dir)
	case DriverSQLite:
		path := config.SQLitePath
		if path == "" {
			path = filepath.Join(dir, "radaudit.db")
		}
		s, err = NewSQLite(path)
	default:
		return nil, eris.Errorf("store: unknown driver %q (supported: file, sqlite)", config.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// checkID rejects ids that could escape the storage directory
func checkID(kind, id string) error {
	if !idPattern.MatchString(id) || strings.Contains(id, "..") {
		return eris.Errorf("store: invalid %s id %q", kind, id)
	}
	return nil
}

func summarize(r *model.AuditResult) RunSummary {
	return RunSummary{
		RunID:        r.RunID,
		CaseLabel:    r.CaseLabel,
		CreatedAt:    r.CreatedAt,
		OverallScore: r.OverallScore,
		Severity:     r.Severity,
		ModelVersion: r.ModelVersion,
	}
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

// withEventDefaults fills the id, timestamp and actor of an event
func withEventDefaults(event model.Event) model.Event {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Actor == "" {
		event.Actor = "system"
	}
	return event
}
