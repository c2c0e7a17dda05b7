// Package journal persists delivered change events to SQLite so they can be
// queried after the fact.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/listenupapp/treewatch/internal/filetree"
)

//go:embed schema.sql
var schemaSQL string

// DefaultLimit and MaxLimit bound Recent.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Entry is one journaled change event.
type Entry struct {
	ID         int64               `json:"id"`
	Monitor    string              `json:"monitor"`
	Kind       filetree.ChangeKind `json:"kind"`
	Record     filetree.FileRecord `json:"record"`
	RecordedAt time.Time           `json:"recorded_at"`
}

// Store is the SQLite-backed journal.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the journal database at path, creating its directory
// if needed. It configures WAL mode and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One writer at a time; readers share the rest.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	logger.Debug("journal opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one batch for monitor in a single transaction.
func (s *Store) Append(ctx context.Context, monitor string, events []filetree.ChangeEvent, at time.Time) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO change_events (monitor, kind, path, is_dir, size, mod_time, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	recordedAt := formatTime(at)
	for _, ev := range events {
		_, err := stmt.ExecContext(ctx,
			monitor,
			ev.Kind.String(),
			ev.Record.Path,
			ev.Record.IsDir,
			int64(ev.Record.Size), //#nosec G115 -- file sizes fit in int64
			formatTime(ev.Record.ModTime),
			recordedAt,
		)
		if err != nil {
			return fmt.Errorf("insert event for %s: %w", ev.Record.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for monitor, newest first. A
// non-positive limit selects DefaultLimit and larger values are capped at
// MaxLimit.
func (s *Store) Recent(ctx context.Context, monitor string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, monitor, kind, path, is_dir, size, mod_time, recorded_at
		FROM change_events
		WHERE monitor = ?
		ORDER BY id DESC
		LIMIT ?`, monitor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns how many entries are stored for monitor.
func (s *Store) Count(ctx context.Context, monitor string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_events WHERE monitor = ?`, monitor).Scan(&n)
	return n, err
}

// Prune deletes entries recorded before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM change_events WHERE recorded_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		e          Entry
		kind       string
		size       int64
		modTime    string
		recordedAt string
	)
	if err := scanner.Scan(&e.ID, &e.Monitor, &kind, &e.Record.Path, &e.Record.IsDir, &size, &modTime, &recordedAt); err != nil {
		return Entry{}, err
	}

	var err error
	if e.Kind, err = filetree.ParseKind(kind); err != nil {
		return Entry{}, err
	}
	e.Record.Size = uint64(size) //#nosec G115 -- stored from a uint64
	if e.Record.ModTime, err = parseTime(modTime); err != nil {
		return Entry{}, err
	}
	if e.RecordedAt, err = parseTime(recordedAt); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
