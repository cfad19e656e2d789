// Package store provides the typed key/value operations the router shares
// state through.
//
// The Store interface covers exactly the key shapes the repository needs:
// hashes for queue/agent records, sets for membership, lists for waiting
// calls, and plain strings for the round-robin pointer. Implementations:
//
//   - Redis: production back-end (go-redis), the single source of truth
//     for cross-call state.
//   - Memory: mutex-guarded maps for tests and single-node development.
package store

import (
	"context"
	"errors"
)

// ErrNil indicates the requested key or value does not exist.
// Implementations map their native "no value" result to this error.
var ErrNil = errors.New("store: nil value")

// Store is the minimal contract the repository layer depends on.
// All operations are context-first and safe for concurrent use.
type Store interface {
	// HGetAll returns all fields of a hash. An unknown key yields an
	// empty map, not an error.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HSet writes the given fields into a hash, creating it if needed.
	HSet(ctx context.Context, key string, fields map[string]string) error

	// SAdd adds members to a set.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from a set.
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers returns all members of a set. Unknown keys yield an
	// empty slice.
	SMembers(ctx context.Context, key string) ([]string, error)

	// RPush appends a value to the tail of a list.
	RPush(ctx context.Context, key, value string) error

	// LPop removes and returns the head of a list.
	// Returns ErrNil when the list is empty or absent.
	LPop(ctx context.Context, key string) (string, error)

	// LRem removes every occurrence of value from a list and returns
	// the number removed.
	LRem(ctx context.Context, key, value string) (int64, error)

	// LRange returns the full contents of a list in order without
	// consuming it. Unknown keys yield an empty slice.
	LRange(ctx context.Context, key string) ([]string, error)

	// Get returns a string value. Returns ErrNil when absent.
	Get(ctx context.Context, key string) (string, error)

	// Set writes a string value.
	Set(ctx context.Context, key, value string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection resources.
	Close() error
}
