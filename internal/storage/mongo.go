// Package storage contains the MongoDB implementation of the Store interface.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tiendaonline/tienda-api/internal/model"
)

// ErrNotConnected is returned by every operation issued before Connect succeeds.
var ErrNotConnected = errors.New("database not connected")

const eventsCollection = "webhook_events"

var _ Backend = (*Mongo)(nil)

// Mongo implements Store on a single shared client. The client is created by
// Connect, which the lifecycle supervisor runs once at process start.
type Mongo struct {
	uri      string
	database string
	client   atomic.Pointer[mongo.Client]
}

// NewMongo prepares a store for uri/database without dialing.
func NewMongo(uri, database string) *Mongo {
	return &Mongo{uri: uri, database: database}
}

// Connect dials the deployment and verifies it with a primary ping.
func (m *Mongo) Connect(ctx context.Context) error {
	if m.uri == "" {
		return errors.New("MONGO_URI is not set")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.uri))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("ping mongo: %w", err)
	}
	if err := ensureIndexes(ctx, client.Database(m.database)); err != nil {
		_ = client.Disconnect(context.Background())
		return err
	}
	m.client.Store(client)
	return nil
}

// Ping checks connectivity for readiness probes.
func (m *Mongo) Ping(ctx context.Context) error {
	client := m.client.Load()
	if client == nil {
		return ErrNotConnected
	}
	return client.Ping(ctx, readpref.Primary())
}

// Disconnect closes the client if one was established.
func (m *Mongo) Disconnect(ctx context.Context) error {
	client := m.client.Swap(nil)
	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}

func (m *Mongo) collection(name string) (*mongo.Collection, error) {
	client := m.client.Load()
	if client == nil {
		return nil, ErrNotConnected
	}
	return client.Database(m.database).Collection(name), nil
}

func (m *Mongo) List(ctx context.Context, name string, opts model.ListOptions) ([]model.Document, error) {
	coll, err := m.collection(name)
	if err != nil {
		return nil, err
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}
	cur, err := coll.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", name, err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	out := make([]model.Document, 0, len(raw))
	for _, r := range raw {
		out = append(out, fromBSON(r))
	}
	return out, nil
}

func (m *Mongo) Get(ctx context.Context, name, id string) (model.Document, error) {
	coll, err := m.collection(name)
	if err != nil {
		return nil, err
	}
	var raw bson.M
	if err := coll.FindOne(ctx, idFilter(id)).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find %s/%s: %w", name, id, err)
	}
	return fromBSON(raw), nil
}

// Create assigns an ObjectID when the document has no id of its own.
func (m *Mongo) Create(ctx context.Context, name string, doc model.Document) (model.Document, error) {
	coll, err := m.collection(name)
	if err != nil {
		return nil, err
	}
	stored := bson.M{}
	for k, v := range doc {
		stored[k] = v
	}
	if id := doc.ID(); id != "" {
		stored[model.IDField] = toObjectID(id)
	} else {
		stored[model.IDField] = primitive.NewObjectID()
	}
	if _, err := coll.InsertOne(ctx, stored); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert %s: %w", name, err)
	}
	return fromBSON(stored), nil
}

func (m *Mongo) Update(ctx context.Context, name, id string, fields model.Document) (model.Document, error) {
	coll, err := m.collection(name)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	for k, v := range fields {
		if k == model.IDField {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		return m.Get(ctx, name, id)
	}
	var raw bson.M
	err = coll.FindOneAndUpdate(ctx, idFilter(id), bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update %s/%s: %w", name, id, err)
	}
	return fromBSON(raw), nil
}

func (m *Mongo) Delete(ctx context.Context, name, id string) error {
	coll, err := m.collection(name)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", name, id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) RecordEvent(ctx context.Context, event model.WebhookEvent) error {
	coll, err := m.collection(eventsCollection)
	if err != nil {
		return err
	}
	if _, err := coll.InsertOne(ctx, event); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// idFilter matches ObjectID-shaped ids as ObjectIDs and everything else as
// plain strings, so documents created by other clients stay addressable.
func idFilter(id string) bson.M {
	return bson.M{model.IDField: toObjectID(id)}
}

func toObjectID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func fromBSON(raw bson.M) model.Document {
	doc := make(model.Document, len(raw))
	for k, v := range raw {
		doc[k] = normalize(v)
	}
	return doc
}

// normalize converts driver types into values encoding/json renders the same
// way a JSON client sent them.
func normalize(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case bson.M:
		return map[string]any(fromBSON(t))
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	default:
		return v
	}
}
