package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/relevar/relevar/internal/domain"
)

// Compile-time check: SQLite implements Store.
var _ Store = (*SQLite)(nil)

// SQLite is a single-file backend for deployments that do not run Redis.
// Use ":memory:" for an in-memory database in tests.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and runs the schema
// migration.
func NewSQLite(path string) (*SQLite, error) {
	// WAL mode improves concurrent read performance on a single host.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single writer connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS items (
    id      TEXT PRIMARY KEY,
    scope   TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    vector  BLOB,
    data    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_scope ON items (scope);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *SQLite) Put(ctx context.Context, it *domain.Item) error {
	fields, err := encodeFields(it)
	if err != nil {
		return &Error{Op: OpPut, Err: err}
	}
	const q = `
INSERT INTO items (id, scope, content, vector, data) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    scope = excluded.scope,
    content = excluded.content,
    vector = excluded.vector,
    data = excluded.data`
	_, err = s.db.ExecContext(ctx, q,
		it.ID, it.TenantScope, fields[fieldContent], []byte(fields[fieldVector]), fields[fieldData])
	if err != nil {
		return &Error{Op: OpPut, Err: fmt.Errorf("item %s: %w", it.ID, err)}
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*domain.Item, error) {
	const q = `SELECT content, vector, data FROM items WHERE id = ?`
	var content, data string
	var vector []byte
	err := s.db.QueryRowContext(ctx, q, id).Scan(&content, &vector, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &Error{Op: OpGet, Err: err}
	}
	return s.decodeRow(id, content, vector, data)
}

func (s *SQLite) GetMulti(ctx context.Context, ids []string) ([]*domain.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, vector, data FROM items WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, &Error{Op: OpGet, Err: err}
	}
	defer rows.Close()

	found := make(map[string]*domain.Item, len(ids))
	for rows.Next() {
		var id, content, data string
		var vector []byte
		if err := rows.Scan(&id, &content, &vector, &data); err != nil {
			return nil, &Error{Op: OpGet, Err: err}
		}
		it, err := s.decodeRow(id, content, vector, data)
		if err != nil {
			return nil, err
		}
		found[id] = it
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: OpGet, Err: err}
	}

	out := make([]*domain.Item, len(ids))
	for i, id := range ids {
		out[i] = found[id]
	}
	return out, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return &Error{Op: OpDelete, Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Scan(ctx context.Context, scope string, fn func(it *domain.Item) error) error {
	q := `SELECT id, content, vector, data FROM items`
	var args []any
	if scope != "" {
		q += ` WHERE scope = ?`
		args = append(args, scope)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return &Error{Op: OpScan, Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var id, content, data string
		var vector []byte
		if err := rows.Scan(&id, &content, &vector, &data); err != nil {
			return &Error{Op: OpScan, Err: err}
		}
		it, err := s.decodeRow(id, content, vector, data)
		if err != nil {
			return err
		}
		if err := fn(it); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return &Error{Op: OpScan, Err: err}
	}
	return nil
}

func (s *SQLite) decodeRow(id, content string, vector []byte, data string) (*domain.Item, error) {
	it, err := decodeFields(id, map[string]string{
		fieldContent: content,
		fieldVector:  string(vector),
		fieldData:    data,
	})
	if err != nil {
		return nil, &Error{Op: OpGet, Err: err}
	}
	return it, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &Error{Op: OpPing, Err: err}
	}
	return nil
}

// WaitForReady pings once; a local file is ready or it never will be.
func (s *SQLite) WaitForReady(ctx context.Context, _ time.Duration) error {
	return s.Ping(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
