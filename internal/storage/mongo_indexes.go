package storage

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// indexSpec is one index the service relies on.
type indexSpec struct {
	collection string
	model      mongo.IndexModel
}

// requiredIndexes lists secondary indexes. CreateMany is a no-op for indexes
// that already exist with the same definition, so this runs on every start.
var requiredIndexes = []indexSpec{
	// operators browse recent deliveries per event type
	{eventsCollection, mongo.IndexModel{
		Keys:    bson.D{{Key: "type", Value: 1}, {Key: "receivedAt", Value: -1}},
		Options: options.Index().SetName("type_receivedAt"),
	}},
	{"users", mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("email_unique").SetUnique(true).SetSparse(true),
	}},
	{"products", mongo.IndexModel{
		Keys:    bson.D{{Key: "categoria", Value: 1}},
		Options: options.Index().SetName("categoria"),
	}},
}

// ensureIndexes creates requiredIndexes on db.
func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	byCollection := make(map[string][]mongo.IndexModel)
	var order []string
	for _, ix := range requiredIndexes {
		if _, ok := byCollection[ix.collection]; !ok {
			order = append(order, ix.collection)
		}
		byCollection[ix.collection] = append(byCollection[ix.collection], ix.model)
	}
	for _, name := range order {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, byCollection[name]); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
