package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOptions configures the shared client behind the cart records and
// the coupon catalog.
type MongoOptions struct {
	URI             string
	Database        string
	MaxPoolSize     uint64
	MinPoolSize     uint64
	SelectTimeout   time.Duration
	DisconnectAfter time.Duration
}

// MongoConn is a connected database. Close releases its client.
type MongoConn struct {
	DB *mongo.Database

	client  *mongo.Client
	timeout time.Duration
}

func OpenMongo(ctx context.Context, o MongoOptions) (*MongoConn, error) {
	if o.MaxPoolSize == 0 {
		o.MaxPoolSize = 100
	}
	if o.MinPoolSize > o.MaxPoolSize {
		o.MinPoolSize = o.MaxPoolSize
	}
	if o.SelectTimeout <= 0 {
		o.SelectTimeout = 5 * time.Second
	}
	if o.DisconnectAfter <= 0 {
		o.DisconnectAfter = 5 * time.Second
	}

	clientOpts := options.Client().
		ApplyURI(o.URI).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(o.SelectTimeout).
		SetMaxPoolSize(o.MaxPoolSize).
		SetMinPoolSize(o.MinPoolSize)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	conn := &MongoConn{DB: client.Database(o.Database), client: client, timeout: o.DisconnectAfter}
	if err := client.Ping(ctx, nil); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return conn, nil
}

// Close disconnects the client, waiting at most the configured
// disconnect timeout for in-flight operations.
func (c *MongoConn) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}

type record struct {
	Key       string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoStore keeps one document per key in the cart_records collection.
type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		collection: db.Collection("cart_records"),
	}
}

func (m *MongoStore) Read(ctx context.Context, key string) ([]byte, error) {
	var rec record
	err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return []byte(rec.Payload), nil
}

func (m *MongoStore) Write(ctx context.Context, key string, data []byte) error {
	update := bson.M{"$set": bson.M{
		"payload":    string(data),
		"updated_at": time.Now(),
	}}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": key}, update, opts); err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// Touch bumps updated_at so the TTL index keeps the record.
func (m *MongoStore) Touch(ctx context.Context, key string) error {
	update := bson.M{"$set": bson.M{"updated_at": time.Now()}}
	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": key}, update); err != nil {
		return fmt.Errorf("failed to touch record: %w", err)
	}
	return nil
}

// CreateIndexes drops records nobody touched for 90 days.
func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
