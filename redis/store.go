package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// namespaceSeparator joins a namespace and a key.
const namespaceSeparator = ":"

// Store exposes common key-value operations over a Client. A Store can be
// scoped to a namespace; all keys passing through a namespaced store are
// transparently prefixed "ns:".
type Store struct {
	client    *Client
	namespace string
}

// NewStore returns an un-namespaced Store backed by client.
func NewStore(client *Client) *Store {
	return &Store{client: client}
}

// WithNamespace returns a derived store whose keys are prefixed with ns.
// Nested calls compose: s.WithNamespace("a").WithNamespace("b") prefixes
// "a:b:".
func (s *Store) WithNamespace(ns string) *Store {
	if ns == "" {
		return s
	}

	if s.namespace != "" {
		ns = s.namespace + namespaceSeparator + ns
	}

	return &Store{client: s.client, namespace: ns}
}

// Namespace returns the store's namespace, empty for the root store.
func (s *Store) Namespace() string {
	return s.namespace
}

func (s *Store) key(k string) string {
	if s.namespace == "" {
		return k
	}

	return s.namespace + namespaceSeparator + k
}

// stripNamespace removes the store's prefix from keys read back from the
// server so callers see the same names they wrote.
func (s *Store) stripNamespace(k string) string {
	if s.namespace == "" {
		return k
	}

	return strings.TrimPrefix(k, s.namespace+namespaceSeparator)
}

func (s *Store) rdb(ctx context.Context) (*redis.Client, error) {
	return s.client.GetClient(ctx)
}

// Get returns the string value of key. A missing key yields ErrNil.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return "", err
	}

	value, err := rdb.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %s", ErrNil, key)
		}

		return "", fmt.Errorf("redis get: %w", err)
	}

	return value, nil
}

// Set stores value under key with the given TTL. A zero TTL persists the
// key indefinitely.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return err
	}

	if err := rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// SetIfAbsent stores value only when key does not exist and reports
// whether the write happened.
func (s *Store) SetIfAbsent(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return false, err
	}

	ok, err := rdb.SetNX(ctx, s.key(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}

	return ok, nil
}

// Increment adds one to the integer value of key and returns the result.
// Missing keys start at zero.
func (s *Store) Increment(ctx context.Context, key string) (int64, error) {
	return s.IncrementBy(ctx, key, 1)
}

// IncrementBy adds delta to the integer value of key and returns the
// result.
func (s *Store) IncrementBy(ctx context.Context, key string, delta int64) (int64, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return 0, err
	}

	value, err := rdb.IncrBy(ctx, s.key(key), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incrby: %w", err)
	}

	return value, nil
}

// Delete removes the given keys and returns how many existed.
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	rdb, err := s.rdb(ctx)
	if err != nil {
		return 0, err
	}

	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = s.key(k)
	}

	removed, err := rdb.Del(ctx, namespaced...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}

	return removed, nil
}

// HashSetField sets a single field of the hash at key.
func (s *Store) HashSetField(ctx context.Context, key, field string, value any) error {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return err
	}

	if err := rdb.HSet(ctx, s.key(key), field, value).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}

	return nil
}

// HashGetFields returns the named fields of the hash at key, positionally
// aligned with fields. Missing fields yield nil entries.
func (s *Store) HashGetFields(ctx context.Context, key string, fields ...string) ([]any, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return nil, err
	}

	values, err := rdb.HMGet(ctx, s.key(key), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget: %w", err)
	}

	return values, nil
}

// HashDelete removes fields from the hash at key and returns how many
// existed.
func (s *Store) HashDelete(ctx context.Context, key string, fields ...string) (int64, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return 0, err
	}

	removed, err := rdb.HDel(ctx, s.key(key), fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hdel: %w", err)
	}

	return removed, nil
}

// HashGetAll returns every field of the hash at key. A missing key yields
// an empty map.
func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return nil, err
	}

	values, err := rdb.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	return values, nil
}

// Scan iterates the keyspace with SCAN and returns every key matching
// pattern within the store's namespace, with the namespace prefix
// stripped. count is the per-iteration hint; <= 0 uses the server default.
func (s *Store) Scan(ctx context.Context, pattern string, count int64) ([]string, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return nil, err
	}

	var (
		keys   []string
		cursor uint64
	)

	for {
		batch, next, err := rdb.Scan(ctx, cursor, s.key(pattern), count).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan: %w", err)
		}

		for _, k := range batch {
			keys = append(keys, s.stripNamespace(k))
		}

		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Keys returns every key matching pattern within the store's namespace,
// with the prefix stripped. KEYS blocks the server while it runs; prefer
// Scan on large keyspaces.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := rdb.Keys(ctx, s.key(pattern)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}

	keys := make([]string, len(raw))
	for i, k := range raw {
		keys[i] = s.stripNamespace(k)
	}

	return keys, nil
}

// ListPush prepends values to the list at key and returns the new length.
func (s *Store) ListPush(ctx context.Context, key string, values ...any) (int64, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return 0, err
	}

	length, err := rdb.LPush(ctx, s.key(key), values...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis lpush: %w", err)
	}

	return length, nil
}

// ListLength returns the length of the list at key.
func (s *Store) ListLength(ctx context.Context, key string) (int64, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return 0, err
	}

	length, err := rdb.LLen(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}

	return length, nil
}

// ListRange returns the elements of the list at key between start and
// stop, inclusive, with negative indexes counting from the tail.
func (s *Store) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return nil, err
	}

	values, err := rdb.LRange(ctx, s.key(key), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	return values, nil
}

// RunScript evaluates a Lua script. Keys are namespaced before they reach
// the server; args pass through unchanged.
func (s *Store) RunScript(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return nil, err
	}

	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = s.key(k)
	}

	result, err := rdb.Eval(ctx, script, namespaced, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis eval: %w", err)
	}

	return result, nil
}

// DeleteByPrefix removes every key starting with prefix within the
// store's namespace and returns the removed count. See DeleteByPattern
// for the consistency caveat.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	return s.DeleteByPattern(ctx, prefix+"*")
}

// DeleteByPattern removes every key matching pattern within the store's
// namespace and returns the removed count. The read and the delete are
// separate commands, so keys created between them survive.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	rdb, err := s.rdb(ctx)
	if err != nil {
		return 0, err
	}

	keys, err := rdb.Keys(ctx, s.key(pattern)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis keys: %w", err)
	}

	if len(keys) == 0 {
		return 0, nil
	}

	removed, err := rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}

	return removed, nil
}

// ClearNamespace removes every key in the store's namespace. It refuses
// to run on an un-namespaced store, where it would wipe the whole
// keyspace.
func (s *Store) ClearNamespace(ctx context.Context) (int64, error) {
	if s.namespace == "" {
		return 0, errors.New("refusing to clear without a namespace")
	}

	return s.DeleteByPattern(ctx, "*")
}
