package commerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deykows/giftkeeper/internal/logging"
	"github.com/deykows/giftkeeper/internal/tokenx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokens() tokenx.TokenSet {
	return tokenx.TokenSet{IdentityToken: "id-tok", ClearanceToken: "cf-tok"}
}

func TestPurchase_SendsAuthHeadersAndBody(t *testing.T) {
	var gotBody PurchaseRequest
	var gotAuth, gotCf string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, purchasesPath, r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotCf = r.Header.Get("Cf-JWT")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]int{"gemCount": 200})
	}))
	defer srv.Close()

	c := NewClient(logging.NewDiscardLogger(), WithBaseURL(srv.URL))
	res, err := c.Purchase(context.Background(), PurchaseRequest{
		Type:        "AVATAR_SET_1",
		RecipientID: "player-1",
		Message:     "have fun",
	}, testTokens())

	require.NoError(t, err)
	require.NotNil(t, res.GemCount)
	assert.Equal(t, 200, *res.GemCount)
	assert.Equal(t, "Bearer id-tok", gotAuth)
	assert.Equal(t, "cf-tok", gotCf)
	assert.Equal(t, "AVATAR_SET_1", gotBody.Type)
	assert.Equal(t, "player-1", gotBody.RecipientID)
}

func TestPurchase_OmitsEmptyCalendarID(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	c := NewClient(logging.NewDiscardLogger(), WithBaseURL(srv.URL))
	_, err := c.Purchase(context.Background(), PurchaseRequest{Type: "X", RecipientID: "p"}, testTokens())
	require.NoError(t, err)
	_, ok := raw["calendarId"]
	assert.False(t, ok)
}

func TestPurchase_NoGemCountInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	c := NewClient(logging.NewDiscardLogger(), WithBaseURL(srv.URL))
	res, err := c.Purchase(context.Background(), PurchaseRequest{Type: "X", RecipientID: "p"}, testTokens())
	require.NoError(t, err)
	assert.Nil(t, res.GemCount)
}

func TestSearchPlayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, searchPath, r.URL.Path)
		require.Equal(t, "some one", r.URL.Query().Get("username"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": "p-1", "username": "some one", "level": 12},
			{"id": "p-2", "username": "someone else"},
		})
	}))
	defer srv.Close()

	c := NewClient(logging.NewDiscardLogger(), WithBaseURL(srv.URL))
	p, err := c.SearchPlayer(context.Background(), "some one", testTokens())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, 12, p.Level)
}

func TestSearchPlayer_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]any{})
	}))
	defer srv.Close()

	c := NewClient(logging.NewDiscardLogger(), WithBaseURL(srv.URL))
	p, err := c.SearchPlayer(context.Background(), "ghost", testTokens())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         any
		auth         bool
		insufficient bool
	}{
		{
			name:   "401 is auth",
			status: 401,
			body:   map[string]any{"message": "unauthorized"},
			auth:   true,
		},
		{
			name:   "403 is auth",
			status: 403,
			body:   map[string]any{"message": "forbidden"},
			auth:   true,
		},
		{
			name:         "structured insufficient code",
			status:       400,
			body:         map[string]any{"code": "INSUFFICIENT_GEMS", "message": "nope"},
			insufficient: true,
		},
		{
			name:         "free-text insufficient",
			status:       400,
			body:         map[string]any{"message": "Insufficient gems for this purchase"},
			insufficient: true,
		},
		{
			name:         "free-text gem mention on 403",
			status:       403,
			body:         map[string]any{"message": "not enough gems"},
			auth:         true,
			insufficient: true,
		},
		{
			name:   "plain 400 is neither",
			status: 400,
			body:   map[string]any{"message": "Cannot be gifted"},
		},
		{
			name:   "500 with gem text is not a funds error",
			status: 500,
			body:   map[string]any{"message": "gem service exploded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			c := NewClient(logging.NewDiscardLogger(), WithBaseURL(srv.URL))
			_, err := c.Purchase(context.Background(), PurchaseRequest{Type: "X", RecipientID: "p"}, testTokens())
			require.Error(t, err)
			assert.Equal(t, tt.auth, IsAuthError(err))
			assert.Equal(t, tt.insufficient, IsInsufficientFunds(err))
		})
	}
}

func TestAPIError_MessageSurfacedVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "Cannot be gifted"})
	}))
	defer srv.Close()

	c := NewClient(logging.NewDiscardLogger(), WithBaseURL(srv.URL))
	_, err := c.Purchase(context.Background(), PurchaseRequest{Type: "X", RecipientID: "p"}, testTokens())
	require.EqualError(t, err, "Cannot be gifted")
}

func TestRotatingOffers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, offersPath, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"offers": []map[string]any{
				{"type": "SKIN_A", "itemSets": []map[string]string{{"id": "s1", "imageName": "img1"}}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(logging.NewDiscardLogger(), WithBaseURL(srv.URL))
	offers, err := c.RotatingOffers(context.Background(), testTokens())
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "SKIN_A", offers[0].Type)
	assert.Equal(t, "img1", offers[0].ItemSets[0].ImageName)
}
