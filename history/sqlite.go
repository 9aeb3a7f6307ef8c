package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session INTEGER PRIMARY KEY AUTOINCREMENT,
	start   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS history (
	session    INTEGER NOT NULL,
	line       INTEGER NOT NULL,
	source     TEXT NOT NULL,
	source_raw TEXT NOT NULL,
	PRIMARY KEY (session, line)
);
CREATE TABLE IF NOT EXISTS output_history (
	session INTEGER NOT NULL,
	line    INTEGER NOT NULL,
	output  TEXT NOT NULL,
	PRIMARY KEY (session, line)
);`

const selectEntries = `
SELECT h.session, h.line, h.source, h.source_raw, o.output
FROM history h
LEFT JOIN output_history o ON o.session = h.session AND o.line = h.line`

// SQLiteStore keeps history in a SQLite database. Search uses the GLOB
// operator directly.
type SQLiteStore struct {
	db      *sql.DB
	session atomic.Int64
}

// OpenSQLite opens (creating if needed) a history database at path. An empty
// path keeps the database in memory for the life of the store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreFailed, path, err)
	}
	// A second pooled connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrStoreFailed, err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Begin(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO sessions (start) VALUES (?)`, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("%w: begin session: %v", ErrStoreFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: begin session: %v", ErrStoreFailed, err)
	}
	s.session.Store(id)
	return int(id), nil
}

func (s *SQLiteStore) Session() int {
	return int(s.session.Load())
}

func (s *SQLiteStore) Append(ctx context.Context, entry Entry) error {
	session := s.Session()
	if session == 0 {
		return ErrNoSession
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	defer tx.Rollback()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(line) FROM history WHERE session = ?`, session).Scan(&last); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	if last.Valid && last.Int64 >= int64(entry.Line) {
		return fmt.Errorf("%w: line %d after %d", ErrOutOfOrder, entry.Line, last.Int64)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (session, line, source, source_raw) VALUES (?, ?, ?, ?)`,
		session, entry.Line, entry.Source, entry.SourceRaw,
	); err != nil {
		return fmt.Errorf("%w: insert input: %v", ErrStoreFailed, err)
	}

	if entry.Output != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO output_history (session, line, output) VALUES (?, ?, ?)`,
			session, entry.Line, *entry.Output,
		); err != nil {
			return fmt.Errorf("%w: insert output: %v", ErrStoreFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return nil
}

func (s *SQLiteStore) Range(ctx context.Context, session, start, stop int) ([]Entry, error) {
	target := resolveSession(s.Session(), session)
	if stop <= 0 {
		return s.query(ctx, selectEntries+` WHERE h.session = ? AND h.line >= ? ORDER BY h.line`, target, start)
	}
	return s.query(ctx, selectEntries+` WHERE h.session = ? AND h.line >= ? AND h.line < ? ORDER BY h.line`, target, start, stop)
}

func (s *SQLiteStore) Tail(ctx context.Context, n int) ([]Entry, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative tail length %d", ErrInvalidQuery, n)
	}

	entries, err := s.query(ctx, selectEntries+` ORDER BY h.session DESC, h.line DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

func (s *SQLiteStore) Search(ctx context.Context, pattern string, raw bool) ([]Entry, error) {
	column := "h.source"
	if raw {
		column = "h.source_raw"
	}
	return s.query(ctx, selectEntries+` WHERE `+column+` GLOB ? ORDER BY h.session, h.line`, pattern)
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM history WHERE session = ?`, s.Session()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			output sql.NullString
		)
		if err := rows.Scan(&e.Session, &e.Line, &e.Source, &e.SourceRaw, &output); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
		}
		if output.Valid {
			out := output.String
			e.Output = &out
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return entries, nil
}
