// Package engine is the purchase failover core: it guarantees fresh
// credentials for the acting account, executes purchases against the
// vendor, fails over to another pooled account when gems run short, and
// reconciles the provider's authoritative balance back into the pool.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/deykows/giftkeeper/internal/accounts"
	"github.com/deykows/giftkeeper/internal/catalog"
	"github.com/deykows/giftkeeper/internal/commerce"
	"github.com/deykows/giftkeeper/internal/common"
	"github.com/deykows/giftkeeper/internal/ledger"
	"github.com/deykows/giftkeeper/internal/logging"
	"github.com/deykows/giftkeeper/internal/tokenx"
)

// Commerce is the vendor API surface the orchestrator needs. Implemented
// by commerce.Client.
type Commerce interface {
	Purchase(ctx context.Context, req commerce.PurchaseRequest, ts tokenx.TokenSet) (*commerce.PurchaseResult, error)
	SearchPlayer(ctx context.Context, username string, ts tokenx.TokenSet) (*commerce.Player, error)
}

// Orchestrator executes purchase requests. Whole attempts are serialized
// through a single mutex: two concurrent requests can otherwise interleave
// account switches and overdraw an account relative to the vendor's real
// balance.
type Orchestrator struct {
	mu sync.Mutex

	creds    *CredentialManager
	store    *accounts.Store
	ledger   *ledger.Ledger
	catalog  *catalog.Catalog
	commerce Commerce
	log      logging.Logger
}

func NewOrchestrator(creds *CredentialManager, store *accounts.Store, led *ledger.Ledger, cat *catalog.Catalog, com Commerce, log logging.Logger) *Orchestrator {
	return &Orchestrator{
		creds:    creds,
		store:    store,
		ledger:   led,
		catalog:  cat,
		commerce: com,
		log:      log,
	}
}

// Purchase runs one purchase attempt through the full state machine:
// validate, ensure credentials, proactively fail over when cached gems are
// short, execute, and reconcile. Failures always surface as a
// *PurchaseError; the auth-retry and funds-failover paths each run at most
// once per request.
func (o *Orchestrator) Purchase(ctx context.Context, req Request) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// Validating.
	entry, ok := req.Order.resolve(o.catalog)
	if !ok {
		return nil, failf(KindUnknownItem, "%s is not in the catalog", req.Order.describe())
	}
	if entry.Category == catalog.CategoryXPBooster {
		return nil, failf(KindCategoryForbidden, "%s cannot be gifted", req.Order.describe())
	}
	if balance := o.ledger.Balance(req.UserID); balance < entry.Cost {
		return nil, failf(KindInsufficientBalance,
			"balance %d is below the %d gem cost", balance, entry.Cost)
	}

	// CredentialCheck.
	if err := o.creds.EnsureFresh(ctx); err != nil {
		return nil, o.authFailure(err)
	}

	// ProactiveFailoverCheck: the cached count says the current account
	// cannot cover the cost, so switch before spending a purchase call.
	failoverDone := false
	if o.store.Current().GemCount < entry.Cost {
		if err := o.failover(ctx, entry.Cost); err != nil {
			return nil, err
		}
		failoverDone = true
	}

	// Executing.
	wire := req.Order.wire(req.RecipientID, req.Message)
	authRetried := false

	for {
		acting := o.store.Current()
		res, err := o.commerce.Purchase(ctx, wire, acting.Tokens)
		if err == nil {
			return o.settle(ctx, req, entry, acting.Name, res)
		}

		// Insufficient funds before the auth check: the provider reports it
		// on 400 and sometimes 403, and the funds answer is the more
		// specific of the two.
		if commerce.IsInsufficientFunds(err) {
			if failoverDone {
				return nil, failf(KindInsufficientFundsAllAccounts,
					"no pooled account can cover %d gems", entry.Cost)
			}
			o.log.Warn(ctx, "purchase rejected for insufficient gems",
				"account", acting.Name, "cost", entry.Cost)
			if ferr := o.failover(ctx, entry.Cost); ferr != nil {
				return nil, ferr
			}
			failoverDone = true
			continue
		}

		if commerce.IsAuthError(err) {
			if authRetried {
				return nil, failf(KindAuthRejected,
					"provider rejected credentials for %q twice", acting.Name)
			}
			o.log.Warn(ctx, "purchase rejected with auth error, forcing refresh",
				"account", acting.Name)
			if rerr := o.creds.ForceRefresh(ctx); rerr != nil {
				return nil, o.authFailure(rerr)
			}
			authRetried = true
			continue
		}

		o.log.Error(ctx, "purchase failed", "account", acting.Name,
			"order", req.Order.describe(), "error", err)
		return nil, failf(KindProviderError, "%s", err.Error())
	}
}

// LookupPlayer resolves a vendor username to a player profile, with the
// same bounded forced-refresh retry on 401/403 as purchases.
func (o *Orchestrator) LookupPlayer(ctx context.Context, username string) (*commerce.Player, error) {
	if err := o.creds.EnsureFresh(ctx); err != nil {
		return nil, o.authFailure(err)
	}

	for attempt := 0; ; attempt++ {
		player, err := o.commerce.SearchPlayer(ctx, username, o.store.Current().Tokens)
		if err == nil {
			return player, nil
		}
		if commerce.IsAuthError(err) && attempt == 0 {
			if rerr := o.creds.ForceRefresh(ctx); rerr != nil {
				return nil, o.authFailure(rerr)
			}
			continue
		}
		if commerce.IsAuthError(err) {
			return nil, failf(KindAuthRejected, "provider rejected credentials twice")
		}
		return nil, failf(KindProviderError, "%s", err.Error())
	}
}

// failover switches to the first pooled account whose cached gems cover
// cost and ensures its credentials are fresh.
func (o *Orchestrator) failover(ctx context.Context, cost int) *PurchaseError {
	current := o.store.CurrentName()

	name, ok := o.store.FindFailover(cost)
	if !ok {
		o.log.Warn(ctx, "no failover candidate", "current", current, "cost", cost)
		return failf(KindInsufficientFundsAllAccounts,
			"no pooled account can cover %d gems", cost)
	}

	if err := o.store.SwitchTo(ctx, name); err != nil {
		if errors.Is(err, common.ErrAccountNotFound) {
			return failf(KindAccountNotFound, "failover account %q disappeared", name)
		}
		return failf(KindInvariantViolation, "switching to %q: %v", name, err)
	}

	o.log.Info(ctx, "failed over to pooled account", "from", current, "to", name, "cost", cost)

	if err := o.creds.EnsureFresh(ctx); err != nil {
		return o.authFailure(err)
	}
	return nil
}

// settle reconciles the post-purchase balance, debits the requesting
// user's ledger, and records the spend.
func (o *Orchestrator) settle(ctx context.Context, req Request, entry catalog.Entry, account string, res *commerce.PurchaseResult) (*Result, error) {
	if res.GemCount != nil {
		// The provider's count is authoritative; overwrite, never subtract.
		if err := o.store.SetGems(ctx, account, *res.GemCount); err != nil {
			return nil, failf(KindProviderError, "reconciling balance: %v", err)
		}
	} else {
		if err := o.store.SpendGems(ctx, account, entry.Cost); err != nil {
			return nil, failf(KindProviderError, "reconciling balance: %v", err)
		}
	}

	userBalance, err := o.ledger.Debit(ctx, req.UserID, entry.Cost)
	if err != nil {
		return nil, failf(KindProviderError, "debiting ledger: %v", err)
	}
	poolTotal, err := o.ledger.RemovePool(ctx, entry.Cost)
	if err != nil {
		return nil, failf(KindProviderError, "debiting pool total: %v", err)
	}
	if err := o.ledger.RecordSpend(ctx, entry.Cost); err != nil {
		return nil, failf(KindProviderError, "recording spend: %v", err)
	}

	acc, _ := o.store.Get(account)

	o.log.Info(ctx, "purchase complete",
		"account", account,
		"order", req.Order.describe(),
		"recipient", req.RecipientID,
		"cost", entry.Cost,
		"account_gems", acc.GemCount,
		"user", req.UserID)

	return &Result{
		Account:     account,
		Cost:        entry.Cost,
		GemCount:    acc.GemCount,
		UserBalance: userBalance,
		PoolTotal:   poolTotal,
	}, nil
}

// authFailure maps a credential-refresh error to the right kind: captcha
// failures get their own kinds so operators can tell a solving-service
// outage from bad account credentials.
func (o *Orchestrator) authFailure(err error) *PurchaseError {
	switch {
	case errors.Is(err, common.ErrCaptchaTimeout):
		return failf(KindCaptchaTimeout, "%v", err)
	case errors.Is(err, common.ErrNoSolution):
		return failf(KindCaptchaProviderError, "%v", err)
	default:
		return failf(KindAuthUnavailable, "%v", err)
	}
}
