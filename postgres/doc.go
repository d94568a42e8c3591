// Package postgres provides a lazily-initialized pgx connection pool with
// bounded acquisition, periodic idle-connection eviction, scoped cursors,
// pure SQL builders, and a Store facade over common relational operations.
//
// The pool is created on first use under double-checked locking, so a
// configured *Pool is cheap to construct and safe to share. All blocking
// operations take a context.Context.
package postgres
