package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/agentuity/go-doccache/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnvTestMongoURI points the MongoDB tests at a live server. They are skipped
// when it is unset.
const EnvTestMongoURI = "DOCCACHE_TEST_MONGO_URI"

func newTestMongo(t *testing.T) *mongo.Collection {
	t.Helper()
	uri := os.Getenv(EnvTestMongoURI)
	if uri == "" {
		t.Skipf("%s not set", EnvTestMongoURI)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))
	coll := client.Database("doccache_test").Collection("cache_" + uuid.NewString())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = coll.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return coll
}

func TestMongoStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, err := NewMongo(context.Background(), newTestMongo(t))
		require.NoError(t, err)
		return s
	})
}

func TestMongoStoreCreatesIndex(t *testing.T) {
	ctx := context.Background()
	coll := newTestMongo(t)
	_, err := NewMongo(ctx, coll)
	require.NoError(t, err)
	// a second instance on the same collection must not fail
	_, err = NewMongo(ctx, coll)
	require.NoError(t, err)

	specs, err := coll.Indexes().ListSpecifications(ctx)
	require.NoError(t, err)
	var found bool
	for _, spec := range specs {
		if spec.Name == ExpiresAtIndexName {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMongoStoreReadsLegacyDocument(t *testing.T) {
	ctx := context.Background()
	coll := newTestMongo(t)
	s, err := NewMongo(ctx, coll, WithoutIndexBuild())
	require.NoError(t, err)

	exp := base.Add(time.Minute)
	_, err = coll.InsertOne(ctx, bson.D{
		{Key: "_id", Value: "legacy"},
		{Key: "value", Value: []byte("old")},
		{Key: "expiresAt", Value: exp},
		{Key: "absoluteExpiration", Value: nil},
		{Key: "slidingExpirationInSeconds", Value: 60.0},
	})
	require.NoError(t, err)

	e, err := s.Fetch(ctx, "legacy", true)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, []byte("old"), e.Value)
	assertTime(t, &exp, e.ExpiresAt)
	assert.Equal(t, time.Minute, *e.SlidingExpiration)
}

func TestMongoFilters(t *testing.T) {
	now := base
	assert.Equal(t, bson.D{{Key: "_id", Value: "k"}}, keyFilter("k"))
	assert.Equal(t, bson.D{
		{Key: "_id", Value: "k"},
		{Key: "expiresAt", Value: bson.D{{Key: "$ne", Value: nil}}},
		{Key: "absoluteExpiration", Value: (*time.Time)(nil)},
	}, touchFilter("k", nil))
	ceiling := now.Add(time.Hour)
	assert.Equal(t, bson.D{
		{Key: "_id", Value: "k"},
		{Key: "expiresAt", Value: bson.D{{Key: "$ne", Value: nil}}},
		{Key: "absoluteExpiration", Value: &ceiling},
	}, touchFilter("k", &ceiling))
	assert.Equal(t, bson.D{{Key: "expiresAt", Value: bson.D{{Key: "$lte", Value: now}}}}, expiredFilter(now.In(time.FixedZone("x", 3600))))
	assert.Equal(t, bson.D{{Key: "value", Value: 0}}, withoutValueProjection())

	idx := expiresAtIndex()
	assert.Equal(t, bson.D{{Key: "expiresAt", Value: 1}}, idx.Keys)
	require.NotNil(t, idx.Options.Name)
	assert.Equal(t, ExpiresAtIndexName, *idx.Options.Name)
}

func TestMongoDocumentMapping(t *testing.T) {
	in := Entry{
		Key:                "k",
		Value:              []byte("v"),
		ExpiresAt:          at(time.Second),
		AbsoluteExpiration: at(time.Hour),
		SlidingExpiration:  dur(2500 * time.Millisecond),
	}
	doc := toMongoDocument(in)
	require.NotNil(t, doc.SlidingSeconds)
	assert.Equal(t, 2.5, *doc.SlidingSeconds)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var decoded mongoDocument
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	out := decoded.entry()
	assert.Equal(t, in.Value, out.Value)
	assertTime(t, in.ExpiresAt, out.ExpiresAt)
	assertTime(t, in.AbsoluteExpiration, out.AbsoluteExpiration)
	assert.Equal(t, *in.SlidingExpiration, *out.SlidingExpiration)

	// a non-expiring entry stores explicit nulls so the $ne filter sees them
	var m bson.M
	require.NoError(t, bson.Unmarshal(mustMarshal(t, toMongoDocument(Entry{Key: "n", Value: []byte("x")})), &m))
	v, ok := m["expiresAt"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestMongoLogSink(t *testing.T) {
	log := logger.NewTestLogger()
	sink := NewMongoLogSink(log)
	sink.Info(int(options.LogLevelInfo), "connection ready", "host", "db:27017")
	sink.Info(int(options.LogLevelDebug), "command started")
	sink.Error(assert.AnError, "heartbeat failed", "host", "db:27017")

	assert.True(t, log.Contains("DEBUG", "connection ready host=db:27017"))
	assert.True(t, log.Contains("TRACE", "command started"))
	assert.True(t, log.Contains("ERROR", "heartbeat failed host=db:27017"))
}
