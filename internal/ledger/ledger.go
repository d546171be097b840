// Package ledger tracks the community-facing local gem currency: per-user
// balances and the global pool total, independent of the vendor's real
// gem balances. It also keeps rolling spend counters bucketed by day,
// ISO week, and month. Balances never go negative; a debit that would is
// clamped to zero rather than erroring.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/deykows/giftkeeper/internal/kvstore"
	"github.com/deykows/giftkeeper/internal/logging"
	"github.com/google/uuid"
)

// balancesSnapshot mirrors the persisted balances blob.
type balancesSnapshot struct {
	Users     map[string]int `json:"users"`
	TotalGems int            `json:"totalGems"`
}

// Bucket is one rolling spend counter. PeriodKey identifies the period the
// counter belongs to; when the current period's key no longer matches, the
// counter resets.
type Bucket struct {
	PeriodKey    string `json:"periodKey"`
	Gems         int    `json:"gems"`
	Transactions int    `json:"transactions"`
}

// Stats groups the three rolling spend counters.
type Stats struct {
	Daily   Bucket `json:"daily"`
	Weekly  Bucket `json:"weekly"`
	Monthly Bucket `json:"monthly"`
}

// Ledger is the mutex-guarded local currency state.
type Ledger struct {
	mu    sync.Mutex
	store kvstore.Store
	log   logging.Logger
	now   func() time.Time

	users     map[string]int
	totalGems int
	stats     Stats
}

type Option func(*Ledger)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(store kvstore.Store, log logging.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		log:   log,
		now:   time.Now,
		users: make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string { return t.Format("2006-01") }

// Load restores balances and spend counters from the last-saved snapshots.
// Counters whose period key no longer matches the current period reset.
func (l *Ledger) Load(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.store.Get(ctx, kvstore.KeyBalances)
	if err != nil {
		return fmt.Errorf("loading balances: %w", err)
	}
	if data != nil {
		var snap balancesSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("decoding balances: %w", err)
		}
		l.users = snap.Users
		if l.users == nil {
			l.users = make(map[string]int)
		}
		for user, balance := range l.users {
			l.users[user] = clamp(balance)
		}
		l.totalGems = clamp(snap.TotalGems)
	}

	data, err = l.store.Get(ctx, kvstore.KeyStats)
	if err != nil {
		return fmt.Errorf("loading stats: %w", err)
	}
	if data != nil {
		if err := json.Unmarshal(data, &l.stats); err != nil {
			return fmt.Errorf("decoding stats: %w", err)
		}
	}
	l.rollover()

	l.log.Info(ctx, "ledger loaded", "users", len(l.users), "total_gems", l.totalGems)
	return nil
}

// Balance returns the user's current balance; unknown users have zero.
func (l *Ledger) Balance(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users[userID]
}

// Credit adds amount to the user's balance and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.users[userID] = clamp(l.users[userID] + amount)
	if err := l.persistBalances(ctx); err != nil {
		return 0, err
	}
	return l.users[userID], nil
}

// Debit subtracts amount from the user's balance, clamping at zero, and
// returns the new balance.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.users[userID] = clamp(l.users[userID] - amount)
	if err := l.persistBalances(ctx); err != nil {
		return 0, err
	}
	return l.users[userID], nil
}

// SetBalance overwrites the user's balance (clamped to ≥ 0).
func (l *Ledger) SetBalance(ctx context.Context, userID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.users[userID] = clamp(amount)
	if err := l.persistBalances(ctx); err != nil {
		return 0, err
	}
	return l.users[userID], nil
}

// PoolTotal returns the global pool total.
func (l *Ledger) PoolTotal() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalGems
}

// AddPool adds amount to the pool total (clamped at zero on the way down).
func (l *Ledger) AddPool(ctx context.Context, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalGems = clamp(l.totalGems + amount)
	if err := l.persistBalances(ctx); err != nil {
		return 0, err
	}
	return l.totalGems, nil
}

// RemovePool subtracts amount from the pool total, clamping at zero.
func (l *Ledger) RemovePool(ctx context.Context, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalGems = clamp(l.totalGems - amount)
	if err := l.persistBalances(ctx); err != nil {
		return 0, err
	}
	return l.totalGems, nil
}

// SetPool overwrites the pool total (clamped to ≥ 0).
func (l *Ledger) SetPool(ctx context.Context, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalGems = clamp(amount)
	if err := l.persistBalances(ctx); err != nil {
		return 0, err
	}
	return l.totalGems, nil
}

// RecordSpend adds one transaction of the given gem cost to every rolling
// counter, rolling stale periods over first. Each transaction gets an id
// so the audit log can correlate it with the purchase that produced it.
func (l *Ledger) RecordSpend(ctx context.Context, cost int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()

	l.stats.Daily.Gems += cost
	l.stats.Daily.Transactions++
	l.stats.Weekly.Gems += cost
	l.stats.Weekly.Transactions++
	l.stats.Monthly.Gems += cost
	l.stats.Monthly.Transactions++

	l.log.Info(ctx, "spend recorded", "transaction_id", uuid.NewString(), "gems", cost)

	return l.persistStats(ctx)
}

// Stats returns the current counters, rolling stale periods over first.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.stats
}

// rollover resets any counter whose period key no longer matches the
// current period. Callers must hold l.mu.
func (l *Ledger) rollover() {
	now := l.now()
	if key := dayKey(now); l.stats.Daily.PeriodKey != key {
		l.stats.Daily = Bucket{PeriodKey: key}
	}
	if key := weekKey(now); l.stats.Weekly.PeriodKey != key {
		l.stats.Weekly = Bucket{PeriodKey: key}
	}
	if key := monthKey(now); l.stats.Monthly.PeriodKey != key {
		l.stats.Monthly = Bucket{PeriodKey: key}
	}
}

func (l *Ledger) persistBalances(ctx context.Context) error {
	data, err := json.Marshal(balancesSnapshot{Users: l.users, TotalGems: l.totalGems})
	if err != nil {
		return fmt.Errorf("encoding balances: %w", err)
	}
	if err := l.store.Set(ctx, kvstore.KeyBalances, data); err != nil {
		return fmt.Errorf("saving balances: %w", err)
	}
	return nil
}

func (l *Ledger) persistStats(ctx context.Context) error {
	data, err := json.Marshal(l.stats)
	if err != nil {
		return fmt.Errorf("encoding stats: %w", err)
	}
	if err := l.store.Set(ctx, kvstore.KeyStats, data); err != nil {
		return fmt.Errorf("saving stats: %w", err)
	}
	return nil
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
