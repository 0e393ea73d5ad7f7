// Package storage provides interfaces and implementations for persistent storage
// of collection documents and payment webhook events.
package storage

import (
	"context"
	"errors"

	"github.com/tiendaonline/tienda-api/internal/model"
)

// Standard error values used across storage implementations
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the resource already exists.
	ErrConflict = errors.New("conflict")
	// ErrInvalidID indicates an identifier the backend cannot address.
	ErrInvalidID = errors.New("invalid id")
)

// DocumentStore persists schemaless documents grouped by collection name.
type DocumentStore interface {
	// List returns documents of a collection in insertion order
	List(ctx context.Context, collection string, opts model.ListOptions) ([]model.Document, error)
	// Get retrieves a document by id
	Get(ctx context.Context, collection, id string) (model.Document, error)
	// Create stores a new document and returns it with its assigned id
	Create(ctx context.Context, collection string, doc model.Document) (model.Document, error)
	// Update merges fields into an existing document and returns the result
	Update(ctx context.Context, collection, id string, fields model.Document) (model.Document, error)
	// Delete removes a document by id
	Delete(ctx context.Context, collection, id string) error
}

// WebhookEventStore records provider callbacks for idempotent receipt.
type WebhookEventStore interface {
	// RecordEvent stores the event; ErrConflict means the id was already seen
	RecordEvent(ctx context.Context, event model.WebhookEvent) error
}

// Store aggregates all persistence capabilities required by the service.
type Store interface {
	DocumentStore
	WebhookEventStore
}

// Backend is a Store with a connection lifecycle. The supervisor drives
// Connect, readiness probes call Ping and shutdown calls Disconnect.
type Backend interface {
	Store
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
}
