// Package explorer is an HTTP client for the chain explorer API. It is
// the metadata fetcher behind collection discovery and the data source
// for the local wallet.
package explorer

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

	"github.com/rs/zerolog"

	klog "github.com/Klingon-tech/klingdrop/internal/log"
	"github.com/Klingon-tech/klingdrop/internal/metrics"
)

// Errors returned by the client.
var (
	ErrNotFound = errors.New("not found")
	ErrNetwork  = errors.New("explorer unreachable")
)

// StatusError is returned for non-2xx responses other than 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("explorer status %d: %s", e.Code, e.Body)
}

// Unwrap treats server-side failures as network errors.
func (e *StatusError) Unwrap() error {
	if e.Code >= 500 {
		return ErrNetwork
	}
	return nil
}

const pageSize = 100

// Client talks to the explorer REST API.
type Client struct {
	base   string
	http   *http.Client
	logger zerolog.Logger
}

// New creates a client for the explorer at baseURL.
func New(baseURL string) *Client {
	return NewWithTimeout(baseURL, 15*time.Second)
}

// NewWithTimeout creates a client with a custom HTTP timeout.
func NewWithTimeout(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: timeout},
		logger: klog.Explorer,
	}
}

// Token returns issuance info for a token.
func (c *Client) Token(ctx context.Context, tokenID string) (*TokenInfo, error) {
	var info TokenInfo
	if err := c.do(ctx, "token", http.MethodGet, "/api/v1/tokens/"+url.PathEscape(tokenID), nil, &info); err != nil {
		return nil, fmt.Errorf("token %s: %w", tokenID, err)
	}
	return &info, nil
}

// Box returns a box by id, spent or not.
func (c *Client) Box(ctx context.Context, boxID string) (*Box, error) {
	var b boxJSON
	if err := c.do(ctx, "box", http.MethodGet, "/api/v1/boxes/"+url.PathEscape(boxID), nil, &b); err != nil {
		return nil, fmt.Errorf("box %s: %w", boxID, err)
	}
	box := b.box()
	return &box, nil
}

// BoxByTokenID returns the issuance box of a token, where EIP-4 metadata
// registers live.
func (c *Client) BoxByTokenID(ctx context.Context, tokenID string) (*Box, error) {
	info, err := c.Token(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if info.BoxID == "" {
		return nil, fmt.Errorf("token %s: no issuance box: %w", tokenID, ErrNotFound)
	}
	return c.Box(ctx, info.BoxID)
}

// UnspentByAddress returns every unspent box of address, following
// pagination.
func (c *Client) UnspentByAddress(ctx context.Context, address string) ([]Box, error) {
	var out []Box
	for offset := 0; ; offset += pageSize {
		var page struct {
			Items []boxJSON `json:"items"`
			Total int       `json:"total"`
		}
		path := fmt.Sprintf("/api/v1/boxes/unspent/byAddress/%s?offset=%d&limit=%d", url.PathEscape(address), offset, pageSize)
		if err := c.do(ctx, "unspent", http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("unspent boxes of %s: %w", address, err)
		}
		for _, b := range page.Items {
			out = append(out, b.box())
		}
		if len(page.Items) < pageSize || len(out) >= page.Total {
			return out, nil
		}
	}
}

// Height returns the current chain height.
func (c *Client) Height(ctx context.Context) (uint32, error) {
	var state struct {
		Height uint32 `json:"height"`
	}
	if err := c.do(ctx, "height", http.MethodGet, "/api/v1/networkState", nil, &state); err != nil {
		return 0, fmt.Errorf("network state: %w", err)
	}
	return state.Height, nil
}

// Submit posts a signed transaction to the mempool and returns its id.
func (c *Client) Submit(ctx context.Context, signed any) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "submit", http.MethodPost, "/api/v1/mempool/transactions/submit", signed, &resp); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	return resp.ID, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ExplorerRequests.WithLabelValues(endpoint, metrics.Outcome(err)).Inc()
		metrics.ExplorerLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("explorer error response")
		return &StatusError{Code: resp.StatusCode, Body: msg}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
