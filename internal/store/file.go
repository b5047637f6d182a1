package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/radaudit/internal/model"
)

// FileStore keeps runs as results.json files and events in an append-only JSONL log.
//
//	<dir>/runs/<run_id>/results.json
//	<dir>/batches/<batch_id>.json
//	<dir>/events.jsonl
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// RunPath returns where a run's results.json lives
func (s *FileStore) RunPath(runID string) string {
	return filepath.Join(s.dir, "runs", runID, "results.json")
}

func (s *FileStore) batchPath(batchID string) string {
	return filepath.Join(s.dir, "batches", batchID+".json")
}

func (s *FileStore) eventsPath() string {
	return filepath.Join(s.dir, "events.jsonl")
}

func (s *FileStore) Migrate(ctx context.Context) error {
	for _, sub := range []string{"runs", "batches"} {
		if err := os.MkdirAll(filepath.Join(s.dir, sub), 0o755); err != nil {
			return eris.Wrapf(err, "store: create %s dir", sub)
		}
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) SaveRun(ctx context.Context, result *model.AuditResult) error {
	if err := checkID("run", result.RunID); err != nil {
		return err
	}
	return writeJSON(s.RunPath(result.RunID), result)
}

func (s *FileStore) GetRun(ctx context.Context, runID string) (*model.AuditResult, error) {
	if err := checkID("run", runID); err != nil {
		return nil, err
	}
	var r model.AuditResult
	if err := readJSON(s.RunPath(runID), &r); err != nil {
		return nil, eris.Wrapf(err, "store: get run %s", runID)
	}
	return &r, nil
}

func (s *FileStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "runs"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}

	var runs []RunSummary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var r model.AuditResult
		if err := readJSON(s.RunPath(e.Name()), &r); err != nil {
			continue
		}
		if filter.Severity != "" && r.Severity != filter.Severity {
			continue
		}
		runs = append(runs, summarize(&r))
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit := limitOr(filter.Limit, 100); len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *FileStore) LogEvent(ctx context.Context, event model.Event) error {
	line, err := json.Marshal(withEventDefaults(event))
	if err != nil {
		return eris.Wrap(err, "store: marshal event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrap(err, "store: create storage dir")
	}
	f, err := os.OpenFile(s.eventsPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrap(err, "store: open event log")
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return eris.Wrap(err, "store: append event")
	}
	return nil
}

func (s *FileStore) ListEvents(ctx context.Context, filter EventFilter) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.eventsPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: open event log")
	}
	defer f.Close()

	var events []model.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev model.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if filter.RunID != "" && ev.RunID != filter.RunID {
			continue
		}
		if filter.BatchID != "" && ev.BatchID != filter.BatchID {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "store: read event log")
	}

	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

func (s *FileStore) SaveBatch(ctx context.Context, batch *model.BatchResult) error {
	if err := checkID("batch", batch.BatchID); err != nil {
		return err
	}
	return writeJSON(s.batchPath(batch.BatchID), batch)
}

func (s *FileStore) GetBatch(ctx context.Context, batchID string) (*model.BatchResult, error) {
	if err := checkID("batch", batchID); err != nil {
		return nil, err
	}
	var b model.BatchResult
	if err := readJSON(s.batchPath(batchID), &b); err != nil {
		return nil, eris.Wrapf(err, "store: get batch %s", batchID)
	}
	return &b, nil
}

// writeJSON writes v as indented JSON through a temp file and rename
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "store: marshal")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "store: create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return eris.Wrap(err, "store: create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "store: write")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "store: close")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "store: rename to %s", path)
	}
	return nil
}

// readJSON decodes path into v; a missing file maps to ErrNotFound
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
