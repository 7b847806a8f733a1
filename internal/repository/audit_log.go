package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"leadbridge/internal/entities"
)

const partitionDateLayout = "2006-01-02"

// AuditLog appends turns to one newline-delimited JSON file per calendar day.
// Days are cut in the configured location; entry timestamps are always UTC.
type AuditLog struct {
	dir string
	loc *time.Location
	now func() time.Time
	mu  sync.Mutex
}

func NewAuditLog(dir string, loc *time.Location) *AuditLog {
	if loc == nil {
		loc = time.UTC
	}
	return &AuditLog{dir: dir, loc: loc, now: time.Now}
}

// WithClock replaces the time source used to stamp entries.
func (a *AuditLog) WithClock(now func() time.Time) *AuditLog {
	a.now = now
	return a
}

// Append stamps entry and writes it to that day's partition. The clock is
// read under the write lock so a partition is ordered by timestamp. The
// returned time is the stamp, also on error.
func (a *AuditLog) Append(entry entities.AuditEntry) (time.Time, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	at := a.now()
	entry.Timestamp = at.UTC().Format(time.RFC3339Nano)
	line, err := json.Marshal(entry)
	if err != nil {
		return at, fmt.Errorf("encode audit entry: %w", err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return at, fmt.Errorf("creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(a.PartitionPath(a.PartitionDate(at)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return at, fmt.Errorf("opening audit partition: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return at, fmt.Errorf("writing audit entry: %w", err)
	}
	return at, nil
}

// PartitionDate is the calendar day of t in the log's location.
func (a *AuditLog) PartitionDate(t time.Time) string {
	return t.In(a.loc).Format(partitionDateLayout)
}

func (a *AuditLog) PartitionPath(date string) string {
	return filepath.Join(a.dir, date+".jsonl")
}

// ReadPartition returns the raw contents of a day's log. The boolean is false
// when no partition exists for that date.
func (a *AuditLog) ReadPartition(date string) ([]byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data, err := os.ReadFile(a.PartitionPath(date))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading audit partition %s: %w", date, err)
	}
	return data, true, nil
}
