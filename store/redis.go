package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces keys when NewRedis is given an empty prefix.
const DefaultRedisPrefix = "doccache"

// hash fields
const (
	redisFieldKey       = "k"
	redisFieldValue     = "v"
	redisFieldExpiresAt = "e"
	redisFieldAbsolute  = "a"
	redisFieldSliding   = "s"
)

// touchScript only rewrites the expiry of an entry that exists, already has
// one and still has the absolute expiration the caller read.
// KEYS: hash, expiry zset. ARGV: member, expiresAt millis, absolute millis or
// empty.
var touchScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], 'e') == 1 and (redis.call('HGET', KEYS[1], 'a') or '') == ARGV[3] then
	redis.call('HSET', KEYS[1], 'e', ARGV[2])
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
	return 1
end
return 0
`)

// sweepScript removes every member scored at or below ARGV[1].
// KEYS: expiry zset. ARGV: now millis, hash key prefix.
var sweepScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, m in ipairs(members) do
	redis.call('DEL', ARGV[2] .. m)
end
if #members > 0 then
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
return #members
`)

// Redis is a Store backed by Redis. Each entry is a hash and a sorted set
// scored by expiry serves as the index for DeleteExpired. Instants are kept
// at millisecond precision. The caller owns the client.
//
// The sweep script touches keys it derives at runtime, so the prefix must not
// span Redis Cluster slots.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis returns a Store using client with keys namespaced under prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) entryPrefix() string {
	return r.prefix + ":entry:"
}

func (r *Redis) entryKey(key string) string {
	return r.entryPrefix() + key
}

func (r *Redis) expiryKey() string {
	return r.prefix + ":expiry"
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(millis(t), 10)
}

func parseMillis(v interface{}) (*time.Time, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

func parseSeconds(v interface{}) (*time.Duration, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return durationOf(&f), nil
}

func (r *Redis) Fetch(ctx context.Context, key string, includeValue bool) (*Entry, error) {
	fields := []string{redisFieldKey, redisFieldExpiresAt, redisFieldAbsolute, redisFieldSliding}
	if includeValue {
		fields = append(fields, redisFieldValue)
	}
	vals, err := r.client.HMGet(ctx, r.entryKey(key), fields...).Result()
	if err != nil {
		return nil, err
	}
	if vals[0] == nil {
		return nil, nil
	}
	e := &Entry{Key: key}
	if e.ExpiresAt, err = parseMillis(vals[1]); err != nil {
		return nil, err
	}
	if e.AbsoluteExpiration, err = parseMillis(vals[2]); err != nil {
		return nil, err
	}
	if e.SlidingExpiration, err = parseSeconds(vals[3]); err != nil {
		return nil, err
	}
	if includeValue {
		if s, ok := vals[4].(string); ok {
			e.Value = []byte(s)
		}
	}
	return e, nil
}

func (r *Redis) Upsert(ctx context.Context, e Entry) error {
	hash := r.entryKey(e.Key)
	fields := map[string]interface{}{
		redisFieldKey:   e.Key,
		redisFieldValue: e.Value,
	}
	if e.ExpiresAt != nil {
		fields[redisFieldExpiresAt] = formatMillis(*e.ExpiresAt)
	}
	if e.AbsoluteExpiration != nil {
		fields[redisFieldAbsolute] = formatMillis(*e.AbsoluteExpiration)
	}
	if e.SlidingExpiration != nil {
		fields[redisFieldSliding] = strconv.FormatFloat(e.SlidingExpiration.Seconds(), 'g', -1, 64)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, hash)
		pipe.HSet(ctx, hash, fields)
		if e.ExpiresAt != nil {
			pipe.ZAdd(ctx, r.expiryKey(), redis.Z{Score: float64(millis(*e.ExpiresAt)), Member: e.Key})
		} else {
			pipe.ZRem(ctx, r.expiryKey(), e.Key)
		}
		return nil
	})
	return err
}

func (r *Redis) TouchExpiry(ctx context.Context, key string, expiresAt time.Time, absolute *time.Time) error {
	var abs string
	if absolute != nil {
		abs = formatMillis(*absolute)
	}
	return touchScript.Run(ctx, r.client, []string{r.entryKey(key), r.expiryKey()}, key, formatMillis(expiresAt), abs).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.entryKey(key))
		pipe.ZRem(ctx, r.expiryKey(), key)
		return nil
	})
	return err
}

func (r *Redis) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return sweepScript.Run(ctx, r.client, []string{r.expiryKey()}, formatMillis(now), r.entryPrefix()).Int64()
}
