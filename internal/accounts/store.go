// Package accounts owns the vendor account pool: the ordered set of
// accounts, the current-account pointer, each account's token set and
// cached gem count. All mutation goes through Store methods under a single
// mutex, and every mutation persists the full pool snapshot synchronously.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/deykows/giftkeeper/internal/common"
	"github.com/deykows/giftkeeper/internal/cryptox"
	"github.com/deykows/giftkeeper/internal/kvstore"
	"github.com/deykows/giftkeeper/internal/logging"
	"github.com/deykows/giftkeeper/internal/tokenx"
)

// MainAccountName is the distinguished account that can never be removed.
const MainAccountName = "main"

// sealSalt is the fixed argon2 salt for the password-sealing key. The
// secret itself comes from configuration; the salt only namespaces it.
var sealSalt = []byte("giftkeeper/accounts/v1")

// Account is one vendor account. Password is plaintext in memory (full
// password re-authentication needs it) and sealed in snapshots.
type Account struct {
	Name     string
	Email    string
	Password string
	Tokens   tokenx.TokenSet
	GemCount int
}

// accountRecord is the persisted shape of one account.
type accountRecord struct {
	Email          string `json:"email"`
	SealedPassword string `json:"password"`
	IDToken        string `json:"idToken"`
	RefreshToken   string `json:"refreshToken"`
	ClearanceToken string `json:"cfJwt"`
	GemCount       int    `json:"gemCount"`
}

// poolSnapshot is the persisted shape of the whole pool. Order carries the
// insertion order that the failover scan depends on.
type poolSnapshot struct {
	Current  string                   `json:"current"`
	Order    []string                 `json:"order"`
	Accounts map[string]accountRecord `json:"accounts"`
}

// Store is the mutex-guarded account pool.
type Store struct {
	mu      sync.Mutex
	store   kvstore.Store
	sealKey []byte
	log     logging.Logger

	current  string
	order    []string
	accounts map[string]*Account
}

// NewStore builds an empty pool bound to the given snapshot store. secret
// is the installation secret used to seal passwords at rest.
func NewStore(store kvstore.Store, secret []byte, log logging.Logger) *Store {
	return &Store{
		store:    store,
		sealKey:  cryptox.DeriveKey(secret, sealSalt),
		log:      log,
		accounts: make(map[string]*Account),
	}
}

// Load replaces the in-memory pool with the last-saved snapshot. A missing
// snapshot leaves the pool empty; call EnsureMain afterwards to seed it.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Get(ctx, kvstore.KeyAccounts)
	if err != nil {
		return fmt.Errorf("loading account pool: %w", err)
	}
	if data == nil {
		return nil
	}

	var snap poolSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding account pool: %w", err)
	}

	accounts := make(map[string]*Account, len(snap.Accounts))
	for name, rec := range snap.Accounts {
		password := ""
		if rec.SealedPassword != "" {
			plain, err := cryptox.Open(rec.SealedPassword, s.sealKey)
			if err != nil {
				return fmt.Errorf("unsealing password for %q: %w", name, err)
			}
			password = string(plain)
		}
		accounts[name] = &Account{
			Name:     name,
			Email:    rec.Email,
			Password: password,
			Tokens: tokenx.TokenSet{
				IdentityToken:  rec.IDToken,
				RefreshToken:   rec.RefreshToken,
				ClearanceToken: rec.ClearanceToken,
			},
			GemCount: clamp(rec.GemCount),
		}
	}

	order := make([]string, 0, len(accounts))
	for _, name := range snap.Order {
		if _, ok := accounts[name]; ok {
			order = append(order, name)
		}
	}
	// Accounts missing from Order (older snapshots) go to the back.
	for name := range accounts {
		if !contains(order, name) {
			order = append(order, name)
		}
	}

	s.accounts = accounts
	s.order = order
	s.current = snap.Current
	if _, ok := s.accounts[s.current]; !ok && len(order) > 0 {
		s.current = order[0]
	}

	s.log.Info(ctx, "account pool loaded", "accounts", len(s.accounts), "current", s.current)
	return nil
}

// EnsureMain seeds the pool with the "main" account when it is absent and
// makes sure the current pointer refers to an existing entry.
func (s *Store) EnsureMain(ctx context.Context, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[MainAccountName]; !ok {
		s.accounts[MainAccountName] = &Account{
			Name:     MainAccountName,
			Email:    email,
			Password: password,
		}
		s.order = append([]string{MainAccountName}, s.order...)
	}
	if _, ok := s.accounts[s.current]; !ok {
		s.current = MainAccountName
	}
	return s.persist(ctx)
}

// Current returns a copy of the current account.
func (s *Store) Current() Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[s.current]; ok {
		return *acc
	}
	return Account{}
}

// CurrentName returns the name of the current account.
func (s *Store) CurrentName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Get returns a copy of the named account.
func (s *Store) Get(name string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[name]
	if !ok {
		return Account{}, common.ErrAccountNotFound
	}
	return *acc, nil
}

// List returns copies of all accounts in insertion order.
func (s *Store) List() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Account, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.accounts[name])
	}
	return out
}

// Add creates an account with empty tokens and zero cached gems.
func (s *Store) Add(ctx context.Context, name, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[name]; ok {
		return common.ErrAccountAlreadyExists
	}

	s.accounts[name] = &Account{Name: name, Email: email, Password: password}
	s.order = append(s.order, name)

	s.log.Info(ctx, "account added", "account", name)
	return s.persist(ctx)
}

// Remove deletes an account. "main" and the current account are protected.
func (s *Store) Remove(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == MainAccountName || name == s.current {
		return common.ErrAccountProtected
	}
	if _, ok := s.accounts[name]; !ok {
		return common.ErrAccountNotFound
	}

	delete(s.accounts, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.log.Info(ctx, "account removed", "account", name)
	return s.persist(ctx)
}

// SwitchTo changes the current-account pointer. The pool is persisted both
// before and after the pointer change so a crash mid-switch cannot lose the
// outgoing account's latest tokens.
func (s *Store) SwitchTo(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[name]; !ok {
		return common.ErrAccountNotFound
	}

	if err := s.persist(ctx); err != nil {
		return err
	}

	from := s.current
	s.current = name

	if err := s.persist(ctx); err != nil {
		return err
	}

	s.log.Info(ctx, "account switched", "from", from, "to", name)
	return nil
}

// FindFailover scans the pool in insertion order, skipping the current
// account, and returns the first account whose cached gem count covers
// cost. First-fit by insertion order is deliberate; callers rely on the
// stable, predictable scan rather than a best-fit pick.
func (s *Store) FindFailover(cost int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range s.order {
		if name == s.current {
			continue
		}
		if s.accounts[name].GemCount >= cost {
			return name, true
		}
	}
	return "", false
}

// SetTokens overwrites the named account's token set and persists.
func (s *Store) SetTokens(ctx context.Context, name string, ts tokenx.TokenSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[name]
	if !ok {
		return common.ErrAccountNotFound
	}
	acc.Tokens = ts
	return s.persist(ctx)
}

// SetGems overwrites the named account's cached gem count (clamped to ≥ 0)
// and persists. Used to reconcile the provider's authoritative count.
func (s *Store) SetGems(ctx context.Context, name string, gems int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[name]
	if !ok {
		return common.ErrAccountNotFound
	}
	acc.GemCount = clamp(gems)
	return s.persist(ctx)
}

// SpendGems subtracts amount from the named account's cached gem count,
// clamping at zero, and persists. Fallback for providers that omit the
// authoritative count.
func (s *Store) SpendGems(ctx context.Context, name string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[name]
	if !ok {
		return common.ErrAccountNotFound
	}
	acc.GemCount = clamp(acc.GemCount - amount)
	return s.persist(ctx)
}

// persist writes the full pool snapshot. Callers must hold s.mu.
func (s *Store) persist(ctx context.Context) error {
	snap := poolSnapshot{
		Current:  s.current,
		Order:    append([]string(nil), s.order...),
		Accounts: make(map[string]accountRecord, len(s.accounts)),
	}

	for name, acc := range s.accounts {
		sealed := ""
		if acc.Password != "" {
			var err error
			sealed, err = cryptox.Seal([]byte(acc.Password), s.sealKey)
			if err != nil {
				return fmt.Errorf("sealing password for %q: %w", name, err)
			}
		}
		snap.Accounts[name] = accountRecord{
			Email:          acc.Email,
			SealedPassword: sealed,
			IDToken:        acc.Tokens.IdentityToken,
			RefreshToken:   acc.Tokens.RefreshToken,
			ClearanceToken: acc.Tokens.ClearanceToken,
			GemCount:       acc.GemCount,
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding account pool: %w", err)
	}
	if err := s.store.Set(ctx, kvstore.KeyAccounts, data); err != nil {
		return fmt.Errorf("saving account pool: %w", err)
	}
	return nil
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
