// Package redis provides a lazily-connectable go-redis client with
// reconnect rate limiting, and a Store facade with key namespacing over
// common key-value, hash, list and script operations.
package redis
