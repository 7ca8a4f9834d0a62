package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
)

func setupTestDB(t *testing.T) *MongoStore {
	if testing.Short() {
		t.Skip("mongodb container test")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	conn, err := OpenMongo(ctx, MongoOptions{URI: uri, Database: "testdb", MaxPoolSize: 4, MinPoolSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	store := NewMongoStore(conn.DB)
	require.NoError(t, store.CreateIndexes(ctx))
	return store
}

func TestMongoStore_ReadMissing(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.Read(context.Background(), "cart:nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoStore_WriteOverwrites(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "cart:1", []byte(`{"items":[],"timestamp":1}`)))
	require.NoError(t, store.Write(ctx, "cart:1", []byte(`{"items":[],"timestamp":2}`)))

	data, err := store.Read(ctx, "cart:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[],"timestamp":2}`, string(data))
}

func TestMongoStore_ContextCancellation(t *testing.T) {
	store := setupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Nanosecond)
	defer cancel()
	time.Sleep(10 * time.Millisecond)

	_, err := store.Read(ctx, "cart:1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "context")
}

func TestMongoStore_TouchKeepsPayload(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.Write(ctx, "coupon:1", []byte(`{"coupon":null,"timestamp":1}`)))

	var before record
	require.NoError(t, store.collection.FindOne(ctx, bson.M{"_id": "coupon:1"}).Decode(&before))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, store.Touch(ctx, "coupon:1"))
	require.NoError(t, store.Touch(ctx, "coupon:missing"))

	var after record
	require.NoError(t, store.collection.FindOne(ctx, bson.M{"_id": "coupon:1"}).Decode(&after))
	assert.Equal(t, before.Payload, after.Payload)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt))

	_, err := store.Read(ctx, "coupon:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenMongo_UnreachableServer(t *testing.T) {
	_, err := OpenMongo(context.Background(), MongoOptions{
		URI:           "mongodb://127.0.0.1:1/?directConnection=true",
		Database:      "testdb",
		SelectTimeout: 200 * time.Millisecond,
	})
	assert.ErrorContains(t, err, "failed to ping MongoDB")
}
