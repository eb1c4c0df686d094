// Package store persists style guides, decks and check reports as JSON
// documents grouped by kind.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// Document is a stored JSON body with bookkeeping.
type Document struct {
	Kind      string          `db:"kind" json:"kind"`
	ID        string          `db:"id" json:"id"`
	Body      json.RawMessage `db:"body" json:"body"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Store is implemented by Memory and SQLite.
type Store interface {
	Put(ctx context.Context, kind, id string, body json.RawMessage) error
	Get(ctx context.Context, kind, id string) (Document, error)
	List(ctx context.Context, kind string) ([]Document, error)
	Delete(ctx context.Context, kind, id string) error
	Close() error
}

// NewID returns a fresh random identifier.
func NewID() string { return uuid.NewString() }

// Collection is a typed view over one kind in a Store.
type Collection[T any] struct {
	store Store
	kind  string
}

func NewCollection[T any](s Store, kind string) *Collection[T] {
	return &Collection[T]{store: s, kind: kind}
}

func (c *Collection[T]) Put(ctx context.Context, id string, v T) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", c.kind, id, err)
	}
	return c.store.Put(ctx, c.kind, id, body)
}

func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var v T
	doc, err := c.store.Get(ctx, c.kind, id)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(doc.Body, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", c.kind, id, err)
	}
	return v, nil
}

// List returns every value of the collection's kind, oldest first.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	docs, err := c.store.List(ctx, c.kind)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Body, &v); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", c.kind, d.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, c.kind, id)
}

// Open returns a SQLite store for a non-empty path and a Memory store
// otherwise.
func Open(path string) (Store, error) {
	if path == "" {
		return NewMemory(nil), nil
	}
	return NewSQLite(path, nil)
}
