// Package storage contains persistence abstractions and in-memory
// implementations used by the service.
package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tiendaonline/tienda-api/internal/model"
)

type collection struct {
	order []string
	docs  map[string]model.Document
}

type memory struct {
	mu          sync.RWMutex
	collections map[string]*collection
	events      map[string]model.WebhookEvent
}

// NewMemory returns a concurrency-safe in-memory implementation of Store.
// Useful for tests, demos, or as a default ephemeral backend.
func NewMemory() Backend {
	return &memory{
		collections: make(map[string]*collection),
		events:      make(map[string]model.WebhookEvent),
	}
}

// Connect satisfies lifecycle.Connector; the memory backend is always ready.
func (m *memory) Connect(ctx context.Context) error {
	return ctx.Err()
}

// Ping reports readiness for the /ready endpoint.
func (m *memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *memory) Disconnect(context.Context) error { return nil }

func (m *memory) coll(name string) *collection {
	c, ok := m.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]model.Document)}
		m.collections[name] = c
	}
	return c
}

func (m *memory) List(ctx context.Context, name string, opts model.ListOptions) ([]model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return []model.Document{}, nil
	}
	ids := c.order
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(ids)) {
			return []model.Document{}, nil
		}
		ids = ids[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < int64(len(ids)) {
		ids = ids[:opts.Limit]
	}
	out := make([]model.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.docs[id].Clone())
	}
	return out, nil
}

func (m *memory) Get(ctx context.Context, name, id string) (model.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

// Create assigns a uuid when the document has no id of its own.
func (m *memory) Create(ctx context.Context, name string, doc model.Document) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := doc.Clone()
	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
		stored[model.IDField] = id
	}
	c := m.coll(name)
	if _, exists := c.docs[id]; exists {
		return nil, ErrConflict
	}
	c.docs[id] = stored
	c.order = append(c.order, id)
	return stored.Clone(), nil
}

func (m *memory) Update(ctx context.Context, name, id string, fields model.Document) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, ErrNotFound
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range fields {
		if k == model.IDField {
			continue
		}
		doc[k] = v
	}
	return doc.Clone(), nil
}

func (m *memory) Delete(ctx context.Context, name, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memory) RecordEvent(ctx context.Context, event model.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.events[event.ID]; seen {
		return ErrConflict
	}
	event.Payload = append([]byte(nil), event.Payload...)
	m.events[event.ID] = event
	return nil
}
