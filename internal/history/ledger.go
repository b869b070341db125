package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"harp/internal/services"
)

// ErrNotFound is returned when the ledger has no row for a job id.
var ErrNotFound = fmt.Errorf("history entry %w", services.ErrNotFound)

// DefaultLimit caps Recent when the caller passes a non-positive limit.
const DefaultLimit = 50

// Ledger is the SQLite-backed job history.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database and applies migrations.
func Open(path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	ledger := &Ledger{db: db, path: path}
	if err := ledger.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

// Path returns the database file location.
func (l *Ledger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record inserts or replaces the row for entry.ID.
func (l *Ledger) Record(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("history entry requires an id")
	}
	_, err := l.db.ExecContext(ctx, `INSERT INTO job_history (
            id, method, mode, status, message, audio_rows, hand_rows, combined,
            audio_error, hand_error, combined_error, created_at, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            message = excluded.message,
            audio_rows = excluded.audio_rows,
            hand_rows = excluded.hand_rows,
            combined = excluded.combined,
            audio_error = excluded.audio_error,
            hand_error = excluded.hand_error,
            combined_error = excluded.combined_error,
            started_at = excluded.started_at,
            finished_at = excluded.finished_at`,
		entry.ID,
		entry.Method,
		nullableString(entry.Mode),
		entry.Status,
		nullableString(entry.Message),
		nullableInt(entry.AudioRows),
		nullableInt(entry.HandRows),
		boolToInt(entry.Combined),
		nullableString(entry.AudioError),
		nullableString(entry.HandError),
		nullableString(entry.CombinedError),
		formatTime(entry.CreatedAt),
		nullableTime(entry.StartedAt),
		formatTime(entry.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record history %s: %w", entry.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, method, mode, status, message, audio_rows, hand_rows, combined,
        audio_error, hand_error, combined_error, created_at, started_at, finished_at
    FROM job_history`

// Recent returns up to limit entries, most recently finished first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := l.db.QueryContext(ctx, selectColumns+" ORDER BY finished_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

// Get returns the ledger row for id.
func (l *Ledger) Get(ctx context.Context, id string) (Entry, error) {
	row := l.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return entry, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		entry                                         Entry
		mode, message, audioErr, handErr, combinedErr sql.NullString
		startedAt                                     sql.NullString
		createdAt, finishedAt                         string
		audioRows, handRows                           sql.NullInt64
		combined                                      int
	)
	if err := s.Scan(
		&entry.ID, &entry.Method, &mode, &entry.Status, &message,
		&audioRows, &handRows, &combined,
		&audioErr, &handErr, &combinedErr,
		&createdAt, &startedAt, &finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan history: %w", err)
	}
	entry.Mode = mode.String
	entry.Message = message.String
	entry.AudioError = audioErr.String
	entry.HandError = handErr.String
	entry.CombinedError = combinedErr.String
	entry.Combined = combined != 0
	if audioRows.Valid {
		v := int(audioRows.Int64)
		entry.AudioRows = &v
	}
	if handRows.Valid {
		v := int(handRows.Int64)
		entry.HandRows = &v
	}
	entry.CreatedAt = parseTime(createdAt)
	entry.FinishedAt = parseTime(finishedAt)
	if startedAt.Valid {
		t := parseTime(startedAt.String)
		entry.StartedAt = &t
	}
	return entry, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
