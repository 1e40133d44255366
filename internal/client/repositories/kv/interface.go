// Package kv provides the key/value repositories behind the token store's
// storage scopes: SQLite for a durable scope on local disk, Redis for a
// durable scope shared between hosts, and memory for the ephemeral scope.
//
// All implementations follow the same contract: List returns one consistent
// snapshot, SetMany applies all pairs atomically, SetIfPresent does the same
// but only while a guard key is stored, and Delete of an absent key is not an
// error.
package kv

import (
	"context"
)

// Repository is a flat key/value scope.
type Repository interface {
	// List returns every stored pair. An empty scope yields an empty map.
	List(ctx context.Context) (map[string][]byte, error)
	// SetMany upserts all pairs in one atomic step.
	SetMany(ctx context.Context, values map[string][]byte) error
	// SetIfPresent upserts all pairs in one atomic step if guard is stored,
	// and reports whether it wrote.
	SetIfPresent(ctx context.Context, guard string, values map[string][]byte) (bool, error)
	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error
}
