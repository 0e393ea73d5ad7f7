// Package model defines the data shapes shared by storage and the route
// groups. Documents are schemaless on purpose: the ingress layer stores
// whatever JSON object a route group hands it.
package model

import "time"

// IDField is the document key that carries the identifier.
const IDField = "_id"

// Document is a JSON object persisted in a named collection. The identifier
// is always stored under IDField as a string.
type Document map[string]any

// ID returns the document identifier, or "" when absent.
func (d Document) ID() string {
	if d == nil {
		return ""
	}
	id, _ := d[IDField].(string)
	return id
}

// Clone returns a shallow copy so callers cannot mutate stored state.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// WebhookEvent is a payment-provider callback recorded once per provider
// event id.
type WebhookEvent struct {
	ID         string    `json:"id" bson:"_id"`
	Type       string    `json:"type" bson:"type"`
	ReceivedAt time.Time `json:"receivedAt" bson:"receivedAt"`
	Payload    []byte    `json:"-" bson:"payload"`
}

// ListOptions bounds a collection listing.
type ListOptions struct {
	Limit int64
	Skip  int64
}
