// Package captcha submits browser-challenge solving tasks to the 2Captcha
// service and polls for the solution. All failure paths surface the
// common.ErrNoSolution sentinel; callers decide how to react.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/deykows/giftkeeper/internal/common"
	"github.com/deykows/giftkeeper/internal/logging"
)

const (
	// DefaultBaseURL is the public 2Captcha endpoint.
	DefaultBaseURL = "https://2captcha.com"

	// notReady is the service's answer while the task is still being solved.
	notReady = "CAPCHA_NOT_READY"

	pollInterval = 3 * time.Second
	maxPolls     = 30
)

// answer is the JSON shape of both the create-task and poll responses.
type answer struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// SleepFunc suspends until the duration elapses or ctx is done. Injectable
// so tests can run the 90-second polling ceiling on a simulated clock.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client talks to the solving service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	sleep   SleepFunc
	log     logging.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithSleep overrides the inter-poll sleep (tests).
func WithSleep(s SleepFunc) Option {
	return func(c *Client) { c.sleep = s }
}

// WithBaseURL points the client at a different service endpoint (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func NewClient(apiKey string, log logging.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		sleep:   defaultSleep,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Solve submits a turnstile task for the given site key and page URL, then
// polls every 3 seconds for up to 30 attempts (a 90-second ceiling).
// Polling stops immediately on a terminal answer: a solved token or any
// response other than "not ready yet".
func (c *Client) Solve(ctx context.Context, siteKey, pageURL string) (string, error) {
	taskID, err := c.createTask(ctx, siteKey, pageURL)
	if err != nil {
		return "", err
	}

	c.log.Debug(ctx, "captcha task submitted", "task_id", taskID)

	for attempt := 1; attempt <= maxPolls; attempt++ {
		if err := c.sleep(ctx, pollInterval); err != nil {
			return "", fmt.Errorf("%w: %w", common.ErrNoSolution, err)
		}

		a, err := c.pollResult(ctx, taskID)
		if err != nil {
			return "", err
		}

		if a.Status == 1 {
			c.log.Info(ctx, "captcha solved", "task_id", taskID, "attempts", attempt)
			return a.Request, nil
		}

		if a.Request != notReady {
			c.log.Warn(ctx, "captcha provider error", "task_id", taskID, "answer", a.Request)
			return "", fmt.Errorf("%w: %s", common.ErrCaptchaRejected, a.Request)
		}

		c.log.Debug(ctx, "captcha not ready", "task_id", taskID, "attempt", attempt)
	}

	return "", common.ErrCaptchaTimeout
}

func (c *Client) createTask(ctx context.Context, siteKey, pageURL string) (string, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("method", "turnstile")
	params.Set("sitekey", siteKey)
	params.Set("pageurl", pageURL)
	params.Set("json", "1")

	a, err := c.do(ctx, http.MethodPost, c.baseURL+"/in.php", params)
	if err != nil {
		return "", err
	}
	if a.Status != 1 {
		return "", fmt.Errorf("%w: %s", common.ErrCaptchaRejected, a.Request)
	}
	return a.Request, nil
}

func (c *Client) pollResult(ctx context.Context, taskID string) (*answer, error) {
	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("action", "get")
	params.Set("id", taskID)
	params.Set("json", "1")

	return c.do(ctx, http.MethodGet, c.baseURL+"/res.php", params)
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values) (*answer, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrNoSolution, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrNoSolution, err)
	}
	defer resp.Body.Close()

	var a answer
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", common.ErrNoSolution, err)
	}
	return &a, nil
}
