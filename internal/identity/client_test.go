package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deykows/giftkeeper/internal/common"
	"github.com/deykows/giftkeeper/internal/logging"
	"github.com/deykows/giftkeeper/internal/tokenx"
	"github.com/stretchr/testify/require"
)

type fakeSolver struct {
	token  string
	err    error
	solves int
}

func (f *fakeSolver) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	f.solves++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

// identityProvider scripts the sign-in and verify endpoints.
type identityProvider struct {
	t *testing.T

	signIns       int
	verifies      int
	verifyBodies  []map[string]string
	signInHeaders []http.Header

	// rejectClearanceUntil rejects sign-in with "Cloudflare JWT invalid"
	// while signIns <= this value.
	rejectClearanceUntil int

	// verifyFailFirstWithToken answers 500 to the first verify carrying an
	// idToken field.
	verifyFailFirstWithToken bool
}

func (p *identityProvider) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case signInPath:
			p.signIns++
			p.signInHeaders = append(p.signInHeaders, r.Header.Clone())
			if p.signIns <= p.rejectClearanceUntil {
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]any{"code": 403, "message": "Cloudflare JWT invalid"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"idToken":      "new-id-token",
				"refreshToken": "new-refresh-token",
			})
		case verifyPath:
			p.verifies++
			var body map[string]string
			require.NoError(p.t, json.NewDecoder(r.Body).Decode(&body))
			p.verifyBodies = append(p.verifyBodies, body)
			if p.verifyFailFirstWithToken {
				if _, ok := body["idToken"]; ok && p.verifies == 1 {
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]any{"code": 500, "message": "internal"})
					return
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"jwt": "fresh-clearance"})
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestClient(t *testing.T, p *identityProvider, s Solver) *Client {
	t.Helper()
	p.t = t
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)
	return NewClient(s, logging.NewDiscardLogger(), WithBaseURL(srv.URL))
}

func TestReauthenticate_Success(t *testing.T) {
	p := &identityProvider{}
	c := newTestClient(t, p, &fakeSolver{token: "solved"})

	current := tokenx.TokenSet{ClearanceToken: "clearance-1"}
	ts, err := c.Reauthenticate(context.Background(), "a@b.c", "pw", current)
	require.NoError(t, err)
	require.Equal(t, "new-id-token", ts.IdentityToken)
	require.Equal(t, "new-refresh-token", ts.RefreshToken)
	// The clearance token is unaffected by sign-in.
	require.Equal(t, "clearance-1", ts.ClearanceToken)
	require.Equal(t, 1, p.signIns)
	require.Equal(t, "clearance-1", p.signInHeaders[0].Get("Cf-JWT"))
}

func TestReauthenticate_RefreshesClearanceOnce(t *testing.T) {
	p := &identityProvider{rejectClearanceUntil: 1}
	solver := &fakeSolver{token: "solved"}
	c := newTestClient(t, p, solver)

	ts, err := c.Reauthenticate(context.Background(), "a@b.c", "pw", tokenx.TokenSet{ClearanceToken: "stale"})
	require.NoError(t, err)
	require.Equal(t, "new-id-token", ts.IdentityToken)
	require.Equal(t, "fresh-clearance", ts.ClearanceToken)
	require.Equal(t, 2, p.signIns)
	require.Equal(t, 1, solver.solves)
	// Second sign-in carried the refreshed clearance token.
	require.Equal(t, "fresh-clearance", p.signInHeaders[1].Get("Cf-JWT"))
}

func TestReauthenticate_RetryDepthCappedAtOne(t *testing.T) {
	// The provider keeps rejecting the clearance token forever; there must
	// be exactly two sign-in attempts, not a loop.
	p := &identityProvider{rejectClearanceUntil: 100}
	solver := &fakeSolver{token: "solved"}
	c := newTestClient(t, p, solver)

	_, err := c.Reauthenticate(context.Background(), "a@b.c", "pw", tokenx.TokenSet{ClearanceToken: "stale"})
	require.Error(t, err)
	require.Equal(t, 2, p.signIns)
	require.Equal(t, 1, solver.solves)
}

func TestReauthenticate_CaptchaFailureSurfaces(t *testing.T) {
	p := &identityProvider{rejectClearanceUntil: 100}
	c := newTestClient(t, p, &fakeSolver{err: common.ErrCaptchaTimeout})

	_, err := c.Reauthenticate(context.Background(), "a@b.c", "pw", tokenx.TokenSet{ClearanceToken: "stale"})
	require.ErrorIs(t, err, common.ErrNoSolution)
	require.Equal(t, 1, p.signIns)
}

func TestRefreshClearance_IncludesWellFormedToken(t *testing.T) {
	p := &identityProvider{}
	c := newTestClient(t, p, &fakeSolver{token: "solved"})

	longToken := strings.Repeat("x", 60)
	jwt, err := c.RefreshClearance(context.Background(), longToken)
	require.NoError(t, err)
	require.Equal(t, "fresh-clearance", jwt)
	require.Equal(t, longToken, p.verifyBodies[0]["idToken"])
	require.Equal(t, "solved", p.verifyBodies[0]["token"])
}

func TestRefreshClearance_OmitsShortToken(t *testing.T) {
	p := &identityProvider{}
	c := newTestClient(t, p, &fakeSolver{token: "solved"})

	_, err := c.RefreshClearance(context.Background(), "short")
	require.NoError(t, err)
	_, ok := p.verifyBodies[0]["idToken"]
	require.False(t, ok)
}

func TestRefreshClearance_RetriesWithoutTokenOn500(t *testing.T) {
	p := &identityProvider{verifyFailFirstWithToken: true}
	c := newTestClient(t, p, &fakeSolver{token: "solved"})

	jwt, err := c.RefreshClearance(context.Background(), strings.Repeat("x", 60))
	require.NoError(t, err)
	require.Equal(t, "fresh-clearance", jwt)
	require.Equal(t, 2, p.verifies)
	_, withToken := p.verifyBodies[0]["idToken"]
	require.True(t, withToken)
	_, withoutToken := p.verifyBodies[1]["idToken"]
	require.False(t, withoutToken)
}
