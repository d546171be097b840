// Package kvstore is the persisted-state sink for the engine. Snapshots of
// the account pool, ledger, spend statistics, and catalog data are stored
// as opaque JSON blobs under fixed keys; the engine saves synchronously
// after every state-changing operation and loads once at startup.
package kvstore

import "context"

// Well-known snapshot keys.
const (
	KeyAccounts   = "accounts"
	KeyBalances   = "balances"
	KeyStats      = "stats"
	KeyGifts      = "gifts"
	KeyCalendars  = "calendars"
	KeyDailySkins = "daily_skins"
)

// Store is an opaque key-value blob store. Get returns (nil, nil) for a
// missing key so callers can fall back to a documented default shape.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
