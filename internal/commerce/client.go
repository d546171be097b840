// Package commerce talks to the game vendor's commerce API: gift purchases,
// player search, and the rotating limited-offers feed. It does no retry
// policy of its own beyond transport-level backoff on the offers feed; the
// bounded auth-retry and funds-failover policies live in the engine.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deykows/giftkeeper/internal/logging"
	"github.com/deykows/giftkeeper/internal/tokenx"
	"github.com/sethvargo/go-retry"
)

// DefaultBaseURL is the vendor's core API endpoint.
const DefaultBaseURL = "https://core.api-wolvesville.com"

const (
	purchasesPath = "/gemOffers/purchases"
	searchPath    = "/players/search"
	offersPath    = "/billing/rotatingLimitedOffers/v2"
)

// Client issues authenticated calls against the vendor API.
type Client struct {
	baseURL string
	http    *http.Client
	log     logging.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func NewClient(log logging.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PurchaseRequest is the wire shape of a gift purchase. CalendarID is set
// only for calendar purchases.
type PurchaseRequest struct {
	Type        string `json:"type"`
	RecipientID string `json:"giftRecipientId"`
	Message     string `json:"giftMessage"`
	CalendarID  string `json:"calendarId,omitempty"`
}

// PurchaseResult carries the provider's answer. GemCount, when present, is
// the authoritative post-purchase currency count for the acting account.
type PurchaseResult struct {
	GemCount *int `json:"gemCount"`
}

// Player is a vendor player profile as returned by the search endpoint.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Level    int    `json:"level"`
}

// Offer is one entry of the rotating limited-offers feed.
type Offer struct {
	Type       string      `json:"type"`
	ExpireDate string      `json:"expireDate"`
	ItemSets   []OfferItem `json:"itemSets"`
}

type OfferItem struct {
	ID        string `json:"id"`
	ImageName string `json:"imageName"`
}

type offersResponse struct {
	Offers []Offer `json:"offers"`
}

// APIError is a non-2xx answer from the vendor, with the decoded error
// body when one was present.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("vendor api: status %d", e.Status)
}

// IsAuthError reports whether err is a 401/403 from the vendor, the trigger
// for the forced-refresh retry gate.
func IsAuthError(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden
}

// IsInsufficientFunds reports whether err means the acting account lacks
// gems. A structured error code is preferred when the vendor sends one;
// the free-text match on the message is kept as a fallback so the failover
// trigger survives providers that omit the code.
func IsInsufficientFunds(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	if strings.Contains(strings.ToUpper(ae.Code), "INSUFFICIENT") {
		return true
	}
	if ae.Status != http.StatusBadRequest && ae.Status != http.StatusForbidden {
		return false
	}
	msg := strings.ToLower(ae.Message)
	return strings.Contains(msg, "insufficient") || strings.Contains(msg, "gem")
}

// Purchase executes a gift purchase with the given credentials.
func (c *Client) Purchase(ctx context.Context, req PurchaseRequest, ts tokenx.TokenSet) (*PurchaseResult, error) {
	var out PurchaseResult
	if err := c.do(ctx, http.MethodPost, purchasesPath, req, ts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchPlayer resolves a username to a player profile. Returns (nil, nil)
// when no player matches.
func (c *Client) SearchPlayer(ctx context.Context, username string, ts tokenx.TokenSet) (*Player, error) {
	path := searchPath + "?username=" + url.QueryEscape(username)

	var players []Player
	if err := c.do(ctx, http.MethodGet, path, nil, ts, &players); err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, nil
	}
	return &players[0], nil
}

// RotatingOffers fetches the promotional rotating limited-offers feed,
// retrying transient transport failures with fibonacci backoff. Vendor-side
// API errors are not retried.
func (c *Client) RotatingOffers(ctx context.Context, ts tokenx.TokenSet) ([]Offer, error) {
	var out offersResponse

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, offersPath, nil, ts, &out)
		var ae *APIError
		if err != nil && !errors.As(err, &ae) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Offers, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, ts tokenx.TokenSet, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ts.IdentityToken)
	req.Header.Set("Cf-JWT", ts.ClearanceToken)
	req.Header.Set("ids", "1")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ae := &APIError{Status: resp.StatusCode}
		var decoded struct {
			Code    any    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &decoded) == nil {
			ae.Code = fmt.Sprintf("%v", decoded.Code)
			if decoded.Code == nil {
				ae.Code = ""
			}
			ae.Message = decoded.Message
		}
		return ae
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
