// Package cache is a TTL-aware cache over a shared document store.
//
// # Expiration
//
// Every entry may carry a sliding window, an absolute ceiling, both or
// neither. The next deadline is
//
//	expiresAt = min(now + sliding, absolute)
//
// and it is recomputed on every successful read, so a sliding entry lives as
// long as it keeps being used but never past its ceiling. An entry with no
// expiration settings never expires.
//
// Expiry is enforced lazily: a read that finds a stale entry deletes it and
// reports the key as absent. In addition, each operation may start a
// background sweep that bulk deletes everything already expired. Sweeps are
// debounced to at most one per interval ([Config.ExpiredScanInterval], 5
// minutes by default), never delay the operation that triggered them, and
// never fail it. Sweep failures go to the logger, the metrics and the handler
// set with [WithSweepErrorHandler].
//
// # Sharing a store
//
// Any number of Cache values, in any number of processes, may share one
// store. No locks are taken; each store call is a single atomic operation.
// Sliding renewal is last write wins: two concurrent readers each compute a
// deadline from their own clock and the later write persists. Both values are
// at or after the read time, so a deadline never moves backwards past a read.
//
// A renewal is computed from the entry as it was read. If a Set replaces the
// entry between that read and the renewal write, the write is skipped when
// the absolute expiration changed, so a renewal never pushes a new entry past
// its own ceiling. When the replacement keeps the same absolute expiration
// (or has none, like the old one) the renewal still lands and the new entry
// briefly carries a deadline derived from the old sliding window. The next
// read recomputes it.
//
// # Backends
//
// [New] builds a Cache from a [Config]:
//
//   - mongo (default): a MongoDB collection. An ascending index on expiresAt
//     is built in the background at startup.
//   - redis: a hash per entry and a sorted set indexing deadlines.
//   - sqlite: a table in a pure Go SQLite database.
//   - memory: a process-local map.
//
// [NewWithStore] accepts any [store.Store] the caller already holds.
//
// # Errors
//
// Missing and expired keys are not errors. Bad input fails immediately with
// an error matching [ErrInvalidConfiguration]. Store errors and context
// cancellation are returned as they were raised.
//
// # Typed values
//
// [GetValue], [SetValue] and [Exec] store Go values encoded with msgpack:
//
//	found, user, err := cache.Exec(ctx, c, "user:123", cache.EntryOptions{SlidingExpiration: &ttl},
//	    func(ctx context.Context) (User, bool, error) {
//	        user, err := queries.GetUser(ctx, id)
//	        if errors.Is(err, sql.ErrNoRows) {
//	            return User{}, false, nil
//	        }
//	        return user, true, err
//	    },
//	)
package cache
