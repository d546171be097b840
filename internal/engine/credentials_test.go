package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/deykows/giftkeeper/internal/accounts"
	"github.com/deykows/giftkeeper/internal/common"
	"github.com/deykows/giftkeeper/internal/kvstore"
	"github.com/deykows/giftkeeper/internal/logging"
	"github.com/deykows/giftkeeper/internal/tokenx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCredRig(t *testing.T, expired bool) (*CredentialManager, *accounts.Store, *fakeIdentity) {
	t.Helper()
	ctx := context.Background()
	store := accounts.NewStore(kvstore.NewMemoryStore(), []byte("secret"), logging.NewDiscardLogger())
	require.NoError(t, store.EnsureMain(ctx, "main@example.com", "pw"))
	require.NoError(t, store.SetTokens(ctx, accounts.MainAccountName,
		tokenx.TokenSet{IdentityToken: "old", ClearanceToken: "old-cf"}))

	ident := &fakeIdentity{}
	m := NewCredentialManager(ident, store, logging.NewDiscardLogger(),
		WithExpiryCheck(func(tokenx.TokenSet) bool { return expired }))
	return m, store, ident
}

func TestEnsureFresh_FastPath(t *testing.T) {
	m, store, ident := newCredRig(t, false)

	require.NoError(t, m.EnsureFresh(context.Background()))

	assert.Zero(t, ident.calls, "fresh tokens must not hit the identity service")
	assert.Equal(t, "old", store.Current().Tokens.IdentityToken)
}

func TestEnsureFresh_RefreshPersistsTokens(t *testing.T) {
	m, store, ident := newCredRig(t, true)

	require.NoError(t, m.EnsureFresh(context.Background()))

	assert.Equal(t, 1, ident.calls)
	assert.Equal(t, "fresh-main@example.com", store.Current().Tokens.IdentityToken)
	assert.Equal(t, "cf", store.Current().Tokens.ClearanceToken)
}

func TestForceRefresh_IgnoresFreshness(t *testing.T) {
	m, store, ident := newCredRig(t, false)

	require.NoError(t, m.ForceRefresh(context.Background()))

	assert.Equal(t, 1, ident.calls)
	assert.Equal(t, "fresh-main@example.com", store.Current().Tokens.IdentityToken)
}

func TestEnsureFresh_FailurePreservesTokensAndSentinel(t *testing.T) {
	m, store, ident := newCredRig(t, true)
	ident.err = common.ErrCaptchaTimeout

	err := m.EnsureFresh(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNoSolution), "sentinel must survive wrapping")
	assert.True(t, errors.Is(err, common.ErrCaptchaTimeout))
	assert.Equal(t, "old", store.Current().Tokens.IdentityToken, "failed refresh keeps the old set")
}
