package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/deykows/giftkeeper/internal/accounts"
	"github.com/deykows/giftkeeper/internal/logging"
	"github.com/deykows/giftkeeper/internal/tokenx"
)

const (
	// defaultRefreshInterval is how often the scheduled freshness check
	// runs unless configured otherwise.
	defaultRefreshInterval = 50 * time.Minute

	// startupDelay postpones the initial freshness check so the rest of the
	// process can finish wiring first.
	startupDelay = 5 * time.Second
)

// Reauthenticator performs password sign-in for one account. Implemented
// by identity.Client.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context, email, password string, current tokenx.TokenSet) (tokenx.TokenSet, error)
}

// CredentialManager guarantees a valid credential set for the current
// account before any authenticated call.
type CredentialManager struct {
	identity Reauthenticator
	store    *accounts.Store
	log      logging.Logger
	interval time.Duration

	// expired is a seam over tokenx.IsExpired for deterministic tests.
	expired func(tokenx.TokenSet) bool
}

type CredentialOption func(*CredentialManager)

// WithExpiryCheck overrides the freshness predicate (tests).
func WithExpiryCheck(fn func(tokenx.TokenSet) bool) CredentialOption {
	return func(m *CredentialManager) { m.expired = fn }
}

// WithRefreshInterval overrides the scheduled check interval.
func WithRefreshInterval(d time.Duration) CredentialOption {
	return func(m *CredentialManager) {
		if d > 0 {
			m.interval = d
		}
	}
}

func NewCredentialManager(identity Reauthenticator, store *accounts.Store, log logging.Logger, opts ...CredentialOption) *CredentialManager {
	m := &CredentialManager{
		identity: identity,
		store:    store,
		log:      log,
		interval: defaultRefreshInterval,
		expired:  tokenx.IsExpired,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureFresh returns nil immediately when the current account's identity
// token is still fresh; this fast path runs before every authenticated
// call. Otherwise it re-authenticates and persists the new tokens.
func (m *CredentialManager) EnsureFresh(ctx context.Context) error {
	if !m.expired(m.store.Current().Tokens) {
		return nil
	}
	return m.refresh(ctx)
}

// ForceRefresh re-authenticates regardless of apparent freshness. Used as
// the retry gate after the provider answers 401/403 to a token that still
// looked fresh locally.
func (m *CredentialManager) ForceRefresh(ctx context.Context) error {
	return m.refresh(ctx)
}

func (m *CredentialManager) refresh(ctx context.Context) error {
	acc := m.store.Current()

	ts, err := m.identity.Reauthenticate(ctx, acc.Email, acc.Password, acc.Tokens)
	if err != nil {
		m.log.Error(ctx, "credential refresh failed", "account", acc.Name, "error", err)
		return fmt.Errorf("refreshing credentials for %q: %w", acc.Name, err)
	}

	if err := m.store.SetTokens(ctx, acc.Name, ts); err != nil {
		return fmt.Errorf("persisting refreshed tokens for %q: %w", acc.Name, err)
	}

	m.log.Info(ctx, "credentials refreshed", "account", acc.Name,
		"valid_for", tokenx.Remaining(ts).Round(time.Minute))
	return nil
}

// Run drives the scheduled freshness checks: one shortly after start, then
// one per interval. A failing or panicking check is logged and never stops
// the schedule. Returns when ctx is cancelled.
func (m *CredentialManager) Run(ctx context.Context) {
	startup := time.NewTimer(startupDelay)
	defer startup.Stop()

	select {
	case <-ctx.Done():
		return
	case <-startup.C:
		m.tick(ctx)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *CredentialManager) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error(ctx, "panic in scheduled credential check", "panic", r)
		}
	}()

	m.log.Debug(ctx, "scheduled credential check")
	if err := m.EnsureFresh(ctx); err != nil {
		m.log.Warn(ctx, "scheduled credential refresh failed", "error", err)
	}
}
