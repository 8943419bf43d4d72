package cache

import (
	"context"

	"github.com/agentuity/go-doccache/store"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// New validates cfg, connects to the configured backend and returns a Cache
// over it. Invalid configuration fails before any connection is attempted.
// Clients opened here are closed by Cache.Close.
//
// Options given here override the matching Config fields.
func New(ctx context.Context, cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = append([]Option{
		WithSweepInterval(cfg.ExpiredScanInterval),
		WithQueryTimeout(cfg.QueryTimeout),
	}, opts...)
	resolved := applyOptions(opts)

	var (
		s      store.Store
		closer func(context.Context) error
		err    error
	)
	switch cfg.backend() {
	case BackendMongo:
		s, closer, err = openMongo(ctx, cfg, resolved)
	case BackendRedis:
		s, closer, err = openRedis(ctx, cfg)
	case BackendSQLite:
		s, closer, err = openSQLite(ctx, cfg)
	case BackendMemory:
		s = store.NewMemory()
	}
	if err != nil {
		return nil, err
	}
	c := newCache(ctx, s, resolved)
	if closer != nil {
		c.closers = append(c.closers, closer)
	}
	if cfg.ClientOptions != nil {
		c.log.Debug("opened %s cache using client options", cfg.backend())
	} else {
		c.log.Debug("opened %s cache at %s", cfg.backend(), redactConnectionString(cfg.ConnectionString))
	}
	return c, nil
}

func openMongo(ctx context.Context, cfg Config, resolved config) (store.Store, func(context.Context) error, error) {
	clientOpts := []*options.ClientOptions{}
	if cfg.ClientOptions != nil {
		clientOpts = append(clientOpts, cfg.ClientOptions)
	} else {
		clientOpts = append(clientOpts, options.Client().ApplyURI(cfg.ConnectionString))
	}
	if cfg.ClientOptions == nil || cfg.ClientOptions.LoggerOptions == nil {
		clientOpts = append(clientOpts, options.Client().SetLoggerOptions(
			options.Logger().
				SetSink(store.NewMongoLogSink(resolved.log)).
				SetComponentLevel(options.LogComponentAll, options.LogLevelInfo),
		))
	}
	client, err := mongo.Connect(ctx, clientOpts...)
	if err != nil {
		return nil, nil, err
	}
	collection := client.Database(cfg.DatabaseName).Collection(cfg.CollectionName)
	s, err := store.NewMongo(ctx, collection)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	return s, client.Disconnect, nil
}

func openRedis(ctx context.Context, cfg Config) (store.Store, func(context.Context) error, error) {
	redisOpts, err := redis.ParseURL(cfg.ConnectionString)
	if err != nil {
		return nil, nil, errors.Mark(errors.Wrap(err, "invalid redis connection string"), ErrInvalidConfiguration)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store.NewRedis(client, cfg.CollectionName), func(context.Context) error {
		return client.Close()
	}, nil
}

func openSQLite(ctx context.Context, cfg Config) (store.Store, func(context.Context) error, error) {
	s, err := store.OpenSQLite(ctx, cfg.ConnectionString, cfg.CollectionName)
	if err != nil {
		return nil, nil, err
	}
	return s, func(context.Context) error {
		return s.Close()
	}, nil
}
