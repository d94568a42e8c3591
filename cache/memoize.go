// Package cache provides a Redis-backed memoization decorator for
// deterministic functions. Results are keyed by a digest of the function
// name and its cache-relevant arguments and stored as JSON.
package cache

import (
	"context"
	"crypto/md5" // #nosec G501 -- digest is a cache key, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/Aniket1mg/cauldron/log"
	"github.com/Aniket1mg/cauldron/redis"
)

// Options names a memoized function and scopes its cache entries.
type Options struct {
	// Name identifies the function in the cache key. Required; two
	// functions sharing a Name share cache entries.
	Name string

	// Namespace prefixes all entries of this function, so they can be
	// invalidated together via the store. Optional.
	Namespace string

	// TTL bounds the lifetime of each entry. Zero keeps entries until
	// they are invalidated.
	TTL time.Duration
}

// Memoizer caches function results in a key-value store. Cache failures
// never fail the decorated call; misses fall through to the function.
type Memoizer struct {
	store  *redis.Store
	logger log.Logger
}

// NewMemoizer returns a Memoizer over store. A nil logger defaults to
// no-op.
func NewMemoizer(store *redis.Store, logger log.Logger) *Memoizer {
	if logger == nil {
		logger = log.NewNop()
	}

	return &Memoizer{store: store, logger: logger}
}

// Keyable reports whether v participates in cache key derivation.
// Strings, booleans, integers, floats, slices, arrays, maps and
// json.Marshaler implementors are keyable; everything else (contexts,
// connections, channels, functions, arbitrary structs) is excluded from
// the key. Calls that differ only in non-keyable arguments therefore
// share a cache entry.
func Keyable(v any) bool {
	if v == nil {
		return false
	}

	if _, ok := v.(json.Marshaler); ok {
		return true
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Slice, reflect.Array, reflect.Map:
		return true
	default:
		return false
	}
}

// digestKey canonicalizes the function name and keyable args to JSON and
// hashes them to a fixed-length hex key.
func digestKey(name string, args []any) (string, error) {
	keyable := make([]any, 0, len(args))

	for _, arg := range args {
		if Keyable(arg) {
			keyable = append(keyable, arg)
		}
	}

	canonical, err := json.Marshal([]any{name, keyable})
	if err != nil {
		return "", fmt.Errorf("canonicalizing cache key: %w", err)
	}

	sum := md5.Sum(canonical) // #nosec G401

	return hex.EncodeToString(sum[:]), nil
}

func (m *Memoizer) scoped(opts Options) *redis.Store {
	if opts.Namespace == "" {
		return m.store
	}

	return m.store.WithNamespace(opts.Namespace)
}

// Memoize wraps fn with read-through caching. On a hit the cached JSON is
// unmarshaled into R; on a miss fn runs and its result is stored with the
// configured TTL. Concurrent misses both compute and both write; fn must
// be idempotent. Any cache error degrades to calling fn directly.
func Memoize[R any](m *Memoizer, opts Options, fn func(ctx context.Context, args ...any) (R, error)) func(ctx context.Context, args ...any) (R, error) {
	return func(ctx context.Context, args ...any) (R, error) {
		var zero R

		key, err := digestKey(opts.Name, args)
		if err != nil {
			m.logger.Log(ctx, log.LevelDebug, "cache key derivation failed, bypassing cache",
				log.String("name", opts.Name), log.Err(err))

			return fn(ctx, args...)
		}

		store := m.scoped(opts)

		cached, err := store.Get(ctx, key)
		if err == nil {
			var result R
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				return result, nil
			}

			m.logger.Log(ctx, log.LevelDebug, "stale cache entry, recomputing",
				log.String("name", opts.Name), log.String("key", key))
		}

		result, err := fn(ctx, args...)
		if err != nil {
			return zero, err
		}

		payload, err := json.Marshal(result)
		if err != nil {
			m.logger.Log(ctx, log.LevelDebug, "result not serializable, skipping cache",
				log.String("name", opts.Name), log.Err(err))

			return result, nil
		}

		if err := store.Set(ctx, key, payload, opts.TTL); err != nil {
			m.logger.Log(ctx, log.LevelDebug, "cache write failed",
				log.String("name", opts.Name), log.Err(err))
		}

		return result, nil
	}
}

// Invalidate removes the cache entry for one specific argument list.
// Namespace-wide invalidation goes through the store's ClearNamespace.
func (m *Memoizer) Invalidate(ctx context.Context, opts Options, args ...any) error {
	key, err := digestKey(opts.Name, args)
	if err != nil {
		return err
	}

	_, err = m.scoped(opts).Delete(ctx, key)

	return err
}
