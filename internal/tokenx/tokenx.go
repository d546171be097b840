// Package tokenx models the three-credential set every vendor account
// carries and the freshness predicate the credential manager runs before
// each authenticated call.
package tokenx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryMargin is the safety margin applied when classifying a token set
// as expiring. A token with less remaining lifetime than this is treated
// as expired so it still outlives the next authenticated round trip plus
// one retry.
const ExpiryMargin = 5 * time.Minute

// TokenSet holds the credentials for one vendor account.
//
//   - IdentityToken: short-lived signed bearer token carrying an exp claim.
//   - RefreshToken: opaque longer-lived credential (re-obtained via full
//     password sign-in rather than a dedicated refresh exchange).
//   - ClearanceToken: anti-bot credential issued by the provider's edge
//     layer after a solved challenge.
type TokenSet struct {
	IdentityToken  string `json:"idToken"`
	RefreshToken   string `json:"refreshToken"`
	ClearanceToken string `json:"cfJwt"`
}

// now is a test seam.
var now = time.Now

// IsExpired reports whether the set's identity token is expired or expiring
// within ExpiryMargin. Any decode failure, malformed structure, or missing
// exp claim counts as expired; signature verification is deliberately not
// performed here, the provider is the authority on validity.
func IsExpired(ts TokenSet) bool {
	if ts.IdentityToken == "" {
		return true
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(ts.IdentityToken, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}

	return exp.Time.Sub(now()) <= ExpiryMargin
}

// Remaining returns the identity token's remaining lifetime, or zero when
// the token is malformed or already past its expiry.
func Remaining(ts TokenSet) time.Duration {
	if ts.IdentityToken == "" {
		return 0
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(ts.IdentityToken, claims); err != nil {
		return 0
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}

	if d := exp.Time.Sub(now()); d > 0 {
		return d
	}
	return 0
}
