package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type guide struct {
	Name  string   `json:"name"`
	Rules []string `json:"rules"`
}

func stepClock() func() time.Time {
	now := time.Date(2026, 2, 17, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), stepClock())
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{"memory": NewMemory(stepClock()), "sqlite": sq}
}

func TestCollectionRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := NewCollection[guide](s, "style_guide")
			if err := c.Put(ctx, "b", guide{Name: "second", Rules: []string{"x"}}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := c.Put(ctx, "a", guide{Name: "first"}); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, err := c.Get(ctx, "b")
			if err != nil || got.Name != "second" || len(got.Rules) != 1 {
				t.Fatalf("get: %+v %v", got, err)
			}
			list, err := c.List(ctx)
			if err != nil || len(list) != 2 || list[0].Name != "second" {
				t.Fatalf("list should be oldest first: %+v %v", list, err)
			}
			if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			other := NewCollection[guide](s, "deck")
			if l, _ := other.List(ctx); len(l) != 0 {
				t.Fatalf("kinds leaked: %+v", l)
			}
			if err := c.Delete(ctx, "a"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := c.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second delete: %v", err)
			}
		})
	}
}

func TestPutOverwriteKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put(ctx, "k", "1", []byte(`{"v":1}`)); err != nil {
				t.Fatal(err)
			}
			first, _ := s.Get(ctx, "k", "1")
			if err := s.Put(ctx, "k", "1", []byte(`{"v":2}`)); err != nil {
				t.Fatal(err)
			}
			second, _ := s.Get(ctx, "k", "1")
			if !second.CreatedAt.Equal(first.CreatedAt) || !second.UpdatedAt.After(first.UpdatedAt) {
				t.Fatalf("timestamps: %+v -> %+v", first, second)
			}
			if string(second.Body) != `{"v":2}` {
				t.Fatalf("body %s", second.Body)
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")
	s1, err := NewSQLite(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := NewCollection[guide](s1, "style_guide").Put(ctx, "g1", guide{Name: "Acme"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	s1.Close()

	s2, err := NewSQLite(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := NewCollection[guide](s2, "style_guide").Get(ctx, "g1")
	if err != nil || got.Name != "Acme" {
		t.Fatalf("after reopen: %+v %v", got, err)
	}
}

func TestMemoryDoesNotAliasBodies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	body := []byte(`{"a":1}`)
	_ = m.Put(ctx, "k", "1", body)
	body[2] = 'z'
	doc, _ := m.Get(ctx, "k", "1")
	if string(doc.Body) != `{"a":1}` {
		t.Fatalf("stored body mutated: %s", doc.Body)
	}
}

func TestNewIDUnique(t *testing.T) {
	if NewID() == NewID() {
		t.Fatal("ids collide")
	}
}
