package coupon

import (
	"context"
	"fmt"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoSource reads coupon definitions from the coupons collection.
type MongoSource struct {
	collection *mongo.Collection
}

func NewMongoSource(db *mongo.Database) *MongoSource {
	return &MongoSource{collection: db.Collection("coupons")}
}

func (m *MongoSource) Load(ctx context.Context) ([]domain.Coupon, error) {
	cursor, err := m.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query coupons: %w", err)
	}
	defer cursor.Close(ctx)

	var defs []Definition
	if err := cursor.All(ctx, &defs); err != nil {
		return nil, fmt.Errorf("failed to decode coupons: %w", err)
	}
	return convert(defs)
}

// Insert stores definitions, used for seeding.
func (m *MongoSource) Insert(ctx context.Context, defs ...Definition) error {
	docs := make([]interface{}, len(defs))
	for i, d := range defs {
		docs[i] = d
	}
	if _, err := m.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert coupons: %w", err)
	}
	return nil
}
