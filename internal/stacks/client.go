// Package stacks wraps the external blockchain HTTP APIs the server
// consumes: the account-balance endpoint, the read-only contract call
// facility used for subnet get-balance, and the token metadata/price
// aggregator.
package stacks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrCallFailed is returned when a read-only contract call completes but
// the node reports the call itself failed.
var ErrCallFailed = errors.New("read-only call failed")

// Client talks to the chain API node.
type Client struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a chain API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AccountBalances fetches native and fungible-token balances for a
// principal. Fungible tokens are keyed by fully-qualified asset id.
func (c *Client) AccountBalances(ctx context.Context, principal string) (*AccountBalancesResponse, error) {
	u := fmt.Sprintf("%s/extended/v1/address/%s/balances", c.baseURL, url.PathEscape(principal))

	var resp AccountBalancesResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("account balances for %s: %w", principal, err)
	}
	return &resp, nil
}

// GetSubnetBalance executes a read-only get-balance call against a subnet
// token contract and returns the uint result. The node answers with the
// Clarity repr of the value ("u250000").
func (c *Client) GetSubnetBalance(ctx context.Context, contractID, userID string) (uint64, error) {
	addr, name, ok := strings.Cut(contractID, ".")
	if !ok {
		return 0, fmt.Errorf("malformed contract id %q", contractID)
	}

	u := fmt.Sprintf("%s/v2/contracts/call-read/%s/%s/get-balance",
		c.baseURL, url.PathEscape(addr), url.PathEscape(name))
	req := readOnlyCallRequest{
		Sender:    userID,
		Arguments: []string{PrincipalArg(userID)},
	}

	var resp readOnlyCallResponse
	if err := c.postJSON(ctx, u, req, &resp); err != nil {
		return 0, fmt.Errorf("get-balance %s: %w", contractID, err)
	}
	if !resp.Okay {
		return 0, fmt.Errorf("get-balance %s: %w: %s", contractID, ErrCallFailed, resp.Cause)
	}
	return parseClarityUint(resp.Result)
}

// PrincipalArg renders a principal as a Clarity value repr argument.
func PrincipalArg(principal string) string {
	return "'" + principal
}

// parseClarityUint parses a Clarity uint repr, optionally wrapped in an
// (ok ...) response.
func parseClarityUint(repr string) (uint64, error) {
	s := strings.TrimSpace(repr)
	if strings.HasPrefix(s, "(ok ") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[len("(ok ") : len(s)-1])
	}
	if !strings.HasPrefix(s, "u") {
		return 0, fmt.Errorf("unexpected clarity value %q, want uint", repr)
	}
	v, err := strconv.ParseUint(s[1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse clarity uint %q: %w", repr, err)
	}
	return v, nil
}

// getJSON performs a GET with retries and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}, out)
}

// postJSON performs a POST with retries and decodes the JSON response.
func (c *Client) postJSON(ctx context.Context, u string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

// do runs a request with retries and exponential backoff.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error), out interface{}) error {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := build()
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
