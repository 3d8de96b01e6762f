// Package goldstore persists per-player gold balances across sessions.
package goldstore

import "context"

// Store is the durable stat backend. Get reports (0, false, nil) when no
// value exists for the id; Set overwrites unconditionally, last write wins.
type Store interface {
	Get(ctx context.Context, playerID string) (gold int64, ok bool, err error)
	Set(ctx context.Context, playerID string, gold int64) error
}
