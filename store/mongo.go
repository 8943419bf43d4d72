package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Field names match the layout written by earlier versions of this cache so an
// existing collection can be shared.
const (
	fieldKey                = "_id"
	fieldValue              = "value"
	fieldExpiresAt          = "expiresAt"
	fieldAbsoluteExpiration = "absoluteExpiration"
	fieldSlidingSeconds     = "slidingExpirationInSeconds"

	// ExpiresAtIndexName is the name of the index DeleteExpired relies on.
	ExpiresAtIndexName = "expiresAt_1"
)

type mongoDocument struct {
	Key                string     `bson:"_id"`
	Value              []byte     `bson:"value,omitempty"`
	ExpiresAt          *time.Time `bson:"expiresAt"`
	AbsoluteExpiration *time.Time `bson:"absoluteExpiration"`
	SlidingSeconds     *float64   `bson:"slidingExpirationInSeconds"`
}

func toMongoDocument(e Entry) mongoDocument {
	return mongoDocument{
		Key:                e.Key,
		Value:              e.Value,
		ExpiresAt:          utc(e.ExpiresAt),
		AbsoluteExpiration: utc(e.AbsoluteExpiration),
		SlidingSeconds:     secondsOf(e.SlidingExpiration),
	}
}

func (d mongoDocument) entry() *Entry {
	return &Entry{
		Key:                d.Key,
		Value:              d.Value,
		ExpiresAt:          d.ExpiresAt,
		AbsoluteExpiration: d.AbsoluteExpiration,
		SlidingExpiration:  durationOf(d.SlidingSeconds),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func keyFilter(key string) bson.D {
	return bson.D{{Key: fieldKey, Value: key}}
}

func touchFilter(key string, absolute *time.Time) bson.D {
	return bson.D{
		{Key: fieldKey, Value: key},
		{Key: fieldExpiresAt, Value: bson.D{{Key: "$ne", Value: nil}}},
		{Key: fieldAbsoluteExpiration, Value: utc(absolute)},
	}
}

func expiredFilter(now time.Time) bson.D {
	return bson.D{{Key: fieldExpiresAt, Value: bson.D{{Key: "$lte", Value: now.UTC()}}}}
}

func withoutValueProjection() bson.D {
	return bson.D{{Key: fieldValue, Value: 0}}
}

func expiresAtIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: fieldExpiresAt, Value: 1}},
		//nolint:staticcheck // background builds still matter for pre-4.2 servers.
		Options: options.Index().SetName(ExpiresAtIndexName).SetBackground(true),
	}
}

// Mongo is a Store backed by a MongoDB collection. The caller owns the client
// the collection came from.
type Mongo struct {
	collection *mongo.Collection
}

var _ Store = (*Mongo)(nil)

type mongoConfig struct {
	skipIndex bool
}

// MongoOption configures NewMongo.
type MongoOption func(*mongoConfig)

// WithoutIndexBuild skips creating the expiresAt index, for deployments where
// indexes are managed out of band.
func WithoutIndexBuild() MongoOption {
	return func(c *mongoConfig) { c.skipIndex = true }
}

// NewMongo returns a Store over collection and makes sure the expiresAt index
// exists.
func NewMongo(ctx context.Context, collection *mongo.Collection, opts ...MongoOption) (*Mongo, error) {
	var cfg mongoConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	m := &Mongo{collection: collection}
	if !cfg.skipIndex {
		if err := m.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// EnsureIndexes creates the ascending expiresAt index used by DeleteExpired.
// Creating an index that already exists is a no-op on the server.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, expiresAtIndex())
	return err
}

func (m *Mongo) Fetch(ctx context.Context, key string, includeValue bool) (*Entry, error) {
	opts := options.FindOne()
	if !includeValue {
		opts.SetProjection(withoutValueProjection())
	}
	var doc mongoDocument
	err := m.collection.FindOne(ctx, keyFilter(key), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.entry(), nil
}

func (m *Mongo) Upsert(ctx context.Context, e Entry) error {
	_, err := m.collection.ReplaceOne(ctx, keyFilter(e.Key), toMongoDocument(e), options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) TouchExpiry(ctx context.Context, key string, expiresAt time.Time, absolute *time.Time) error {
	update := bson.D{{Key: "$set", Value: bson.D{{Key: fieldExpiresAt, Value: expiresAt.UTC()}}}}
	_, err := m.collection.UpdateOne(ctx, touchFilter(key, absolute), update)
	return err
}

func (m *Mongo) Delete(ctx context.Context, key string) error {
	_, err := m.collection.DeleteOne(ctx, keyFilter(key))
	return err
}

func (m *Mongo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := m.collection.DeleteMany(ctx, expiredFilter(now))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
