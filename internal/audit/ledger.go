// Copyright 2024 AgriGenius Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package audit keeps a ledger of flow invocations: which flow ran, how it
// ended and how long it took. Inputs and model output are never stored.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/flow"
)

const (
	StorageTypeNone   = "none"
	StorageTypeFile   = "file"
	StorageTypeSQLite = "sqlite"
)

// ErrUnsupported is returned by queries the configured storage cannot answer.
var ErrUnsupported = errors.New("audit: operation requires sqlite storage")

// Entry is one recorded invocation.
type Entry struct {
	ID        string        `json:"id"`
	Flow      string        `json:"flow"`
	Outcome   flow.Outcome  `json:"outcome"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	RequestID string        `json:"request_id,omitempty"`
}

// Config holds ledger storage settings.
type Config struct {
	StorageType string
	FilePath    string
	DBPath      string
}

// Ledger appends entries to a JSON-lines file or a SQLite table.
type Ledger struct {
	config Config
	logger *zap.Logger
	db     *sql.DB
	mu     sync.RWMutex
}

// NewLedger opens the configured storage. An empty storage type means none.
func NewLedger(config Config, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StorageType == "" {
		config.StorageType = StorageTypeNone
	}

	l := &Ledger{config: config, logger: logger}

	switch config.StorageType {
	case StorageTypeNone:
	case StorageTypeFile:
		if err := l.initFileStorage(); err != nil {
			return nil, fmt.Errorf("failed to initialize file storage: %w", err)
		}
	case StorageTypeSQLite:
		if err := l.initSQLiteStorage(); err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.StorageType)
	}

	return l, nil
}

// StorageType returns the active storage type.
func (l *Ledger) StorageType() string { return l.config.StorageType }

func (l *Ledger) initFileStorage() error {
	if err := os.MkdirAll(filepath.Dir(l.config.FilePath), 0750); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	file, err := os.OpenFile(l.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create ledger file: %w", err)
	}
	return file.Close()
}

func (l *Ledger) initSQLiteStorage() error {
	if err := os.MkdirAll(filepath.Dir(l.config.DBPath), 0750); err != nil {
		return fmt.Errorf("failed to create ledger database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", l.config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			flow TEXT NOT NULL,
			outcome TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			duration_ms INTEGER NOT NULL,
			request_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_invocations_flow ON invocations(flow);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create invocations table: %w", err)
	}

	l.db = db
	return nil
}

// Record appends e, filling in ID and StartedAt when unset.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if l.config.StorageType == StorageTypeNone {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	switch l.config.StorageType {
	case StorageTypeFile:
		err = l.appendToFile(e)
	case StorageTypeSQLite:
		err = l.insert(ctx, e)
	}
	if err != nil {
		return err
	}

	l.logger.Debug("Invocation recorded",
		zap.String("id", e.ID),
		zap.String("flow", e.Flow),
		zap.String("outcome", string(e.Outcome)))
	return nil
}

func (l *Ledger) appendToFile(e Entry) error {
	file, err := os.OpenFile(l.config.FilePath, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer func() { _ = file.Close() }()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write entry to file: %w", err)
	}
	return nil
}

func (l *Ledger) insert(ctx context.Context, e Entry) error {
	if l.db == nil {
		return errors.New("SQLite database not initialized")
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO invocations (id, flow, outcome, started_at, duration_ms, request_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Flow, string(e.Outcome), e.StartedAt.UTC(), e.Duration.Milliseconds(), e.RequestID)
	if err != nil {
		return fmt.Errorf("failed to insert invocation into SQLite: %w", err)
	}
	return nil
}

// Hook returns a flow hook that records every finished invocation. Storage
// failures are logged and never reach the flow caller.
func (l *Ledger) Hook() flow.Hook {
	return func(ctx context.Context, ev flow.Event) {
		err := l.Record(context.WithoutCancel(ctx), Entry{
			Flow:      ev.Flow,
			Outcome:   ev.Outcome,
			StartedAt: ev.Started,
			Duration:  ev.Duration,
			RequestID: RequestIDFrom(ctx),
		})
		if err != nil {
			l.logger.Warn("Failed to record invocation", zap.String("flow", ev.Flow), zap.Error(err))
		}
	}
}

// Recent returns up to limit entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if l.db == nil {
		return nil, ErrUnsupported
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, flow, outcome, started_at, duration_ms, request_id
		FROM invocations
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			outcome    string
			durationMS int64
			requestID  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Flow, &outcome, &e.StartedAt, &durationMS, &requestID); err != nil {
			return nil, fmt.Errorf("failed to scan invocation row: %w", err)
		}
		e.Outcome = flow.Outcome(outcome)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.RequestID = requestID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invocation rows: %w", err)
	}
	return entries, nil
}

// FlowStats summarises the invocations of one flow.
type FlowStats struct {
	Flow          string               `json:"flow"`
	Total         int                  `json:"total"`
	Outcomes      map[flow.Outcome]int `json:"outcomes"`
	AvgDurationMS float64              `json:"avg_duration_ms"`
}

// Stats returns per-flow counts by outcome, ordered by flow name.
func (l *Ledger) Stats(ctx context.Context) ([]FlowStats, error) {
	if l.db == nil {
		return nil, ErrUnsupported
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.QueryContext(ctx, `
		SELECT flow, outcome, COUNT(*), AVG(duration_ms)
		FROM invocations
		GROUP BY flow, outcome
		ORDER BY flow, outcome
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query invocation stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []FlowStats
	for rows.Next() {
		var (
			name, outcome string
			count         int
			avg           float64
		)
		if err := rows.Scan(&name, &outcome, &count, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan invocation stats row: %w", err)
		}

		if len(stats) == 0 || stats[len(stats)-1].Flow != name {
			stats = append(stats, FlowStats{Flow: name, Outcomes: map[flow.Outcome]int{}})
		}
		s := &stats[len(stats)-1]
		s.AvgDurationMS = (s.AvgDurationMS*float64(s.Total) + avg*float64(count)) / float64(s.Total+count)
		s.Total += count
		s.Outcomes[flow.Outcome(outcome)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invocation stats rows: %w", err)
	}
	return stats, nil
}

// Ping reports whether the storage is usable.
func (l *Ledger) Ping(ctx context.Context) error {
	switch l.config.StorageType {
	case StorageTypeSQLite:
		if l.db == nil {
			return errors.New("SQLite database not initialized")
		}
		return l.db.PingContext(ctx)
	case StorageTypeFile:
		_, err := os.Stat(l.config.FilePath)
		return err
	}
	return nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

type requestIDKey struct{}

// ContextWithRequestID attaches the HTTP request ID recorded with each entry.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request ID stored in ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
