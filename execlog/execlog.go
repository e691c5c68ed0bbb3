// Package execlog records every attempt to run a query. Recording never
// fails the caller: write errors are logged and counted.
package execlog

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nao1215/tabquery/domain/model"
	"github.com/nao1215/tabquery/observability"
)

// History limits.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 1000
)

// Entry is one attempt to be recorded.
type Entry struct {
	DatasetID    string
	Caller       string
	Query        string
	Duration     time.Duration
	Status       model.Status
	ErrorClass   string
	ErrorMessage string
}

// Log is an append-only execution log.
type Log interface {
	Record(ctx context.Context, e Entry)
	// History returns the newest records for a dataset first.
	History(ctx context.Context, datasetID string, limit int) ([]model.QueryExecutionRecord, error)
}

// clampLimit applies the default and maximum history sizes.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return min(limit, MaxHistoryLimit)
}

func recordFailure(logger *slog.Logger, e Entry, err error) {
	observability.IncrementExecLogWriteFailures()
	logger.Error("failed to record query execution",
		slog.String("dataset_id", e.DatasetID),
		slog.String("status", string(e.Status)),
		slog.Any("error", err),
	)
}

// Memory keeps records in process.
type Memory struct {
	mu      sync.Mutex
	records []model.QueryExecutionRecord
	nextID  int64
	now     func() time.Time
}

// NewMemory returns an empty in-memory log.
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// Record appends an entry.
func (m *Memory) Record(_ context.Context, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.records = append(m.records, toRecord(m.nextID, e, m.now().UTC()))
}

// History returns the newest records first. An empty datasetID matches
// every record.
func (m *Memory) History(_ context.Context, datasetID string, limit int) ([]model.QueryExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.QueryExecutionRecord
	for _, r := range m.records {
		if datasetID == "" || r.DatasetID == datasetID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if n := clampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func toRecord(id int64, e Entry, at time.Time) model.QueryExecutionRecord {
	d := e.Duration
	if d < 0 {
		d = 0
	}
	return model.QueryExecutionRecord{
		ID:           id,
		DatasetID:    e.DatasetID,
		Caller:       e.Caller,
		Query:        e.Query,
		Duration:     d,
		Status:       e.Status,
		ErrorClass:   e.ErrorClass,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    at,
	}
}
