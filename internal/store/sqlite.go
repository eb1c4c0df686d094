package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLite persists documents in a single table with write-through semantics.
type SQLite struct {
	db    *sqlx.DB
	clock func() time.Time
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	kind       TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS documents_kind_created ON documents (kind, created_at);
`

// Fixed-width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// row mirrors the table.
type row struct {
	Kind      string `db:"kind"`
	ID        string `db:"id"`
	Body      string `db:"body"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func (r row) document() Document {
	created, _ := time.Parse(timeLayout, r.CreatedAt)
	updated, _ := time.Parse(timeLayout, r.UpdatedAt)
	return Document{
		Kind:      r.Kind,
		ID:        r.ID,
		Body:      json.RawMessage(r.Body),
		CreatedAt: created,
		UpdatedAt: updated,
	}
}

func NewSQLite(dbPath string, clock func() time.Time) (*SQLite, error) {
	if clock == nil {
		clock = time.Now
	}
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, clock: clock}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Put(ctx context.Context, kind, id string, body json.RawMessage) error {
	now := s.clock().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (kind, id, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (kind, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		kind, id, string(body), now, now)
	if err != nil {
		return fmt.Errorf("put %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, kind, id string) (Document, error) {
	var r row
	err := s.db.GetContext(ctx, &r, `SELECT kind, id, body, created_at, updated_at FROM documents WHERE kind = ? AND id = ?`, kind, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return r.document(), nil
}

func (s *SQLite) List(ctx context.Context, kind string) ([]Document, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT kind, id, body, created_at, updated_at FROM documents WHERE kind = ? ORDER BY created_at, id`, kind); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	out := make([]Document, len(rows))
	for i, r := range rows {
		out[i] = r.document()
	}
	return out, nil
}

func (s *SQLite) Delete(ctx context.Context, kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE kind = ? AND id = ?`, kind, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
