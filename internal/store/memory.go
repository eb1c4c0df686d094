package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

type key struct{ kind, id string }

// Memory keeps documents in process. Bodies are copied on the way in and
// out so callers cannot alias stored state.
type Memory struct {
	mu    sync.RWMutex
	docs  map[key]Document
	clock func() time.Time
}

func NewMemory(clock func() time.Time) *Memory {
	if clock == nil {
		clock = time.Now
	}
	return &Memory{docs: map[key]Document{}, clock: clock}
}

func (m *Memory) Put(_ context.Context, kind, id string, body json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock().UTC()
	k := key{kind, id}
	doc, ok := m.docs[k]
	if !ok {
		doc = Document{Kind: kind, ID: id, CreatedAt: now}
	}
	doc.Body = append(json.RawMessage(nil), body...)
	doc.UpdatedAt = now
	m.docs[k] = doc
	return nil
}

func (m *Memory) Get(_ context.Context, kind, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key{kind, id}]
	if !ok {
		return Document{}, ErrNotFound
	}
	doc.Body = append(json.RawMessage(nil), doc.Body...)
	return doc, nil
}

func (m *Memory) List(_ context.Context, kind string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for k, doc := range m.docs {
		if k.kind != kind {
			continue
		}
		doc.Body = append(json.RawMessage(nil), doc.Body...)
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) Delete(_ context.Context, kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{kind, id}
	if _, ok := m.docs[k]; !ok {
		return ErrNotFound
	}
	delete(m.docs, k)
	return nil
}

func (m *Memory) Close() error { return nil }
