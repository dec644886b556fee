package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/folio-tracker/internal/types"
)

// Cron endpoint paths
const (
	UpdatePricesPath = "/cron/update-prices"
	CleanupPath      = "/cron/cleanup"
)

// ChainRequest describes the batch a chain link asks for
type ChainRequest struct {
	Batch      int
	PrevTimeMs int64
	Offset     int
	Tick       time.Time
	Force      types.Period
}

// Query encodes the request as cron endpoint parameters
func (r ChainRequest) Query() url.Values {
	q := url.Values{}
	q.Set("batch", strconv.Itoa(r.Batch))
	if r.PrevTimeMs > 0 {
		q.Set("prevTime", strconv.FormatInt(r.PrevTimeMs, 10))
	}
	q.Set("offset", strconv.Itoa(r.Offset))
	if !r.Tick.IsZero() {
		q.Set("tick", strconv.FormatInt(r.Tick.Unix(), 10))
	}
	if r.Force != "" {
		q.Set("force", string(r.Force))
	}
	return q
}

// CronClient calls the authenticated cron endpoints of a running server.
// The scheduler uses it to chain batches and cmd/ticker to fire ticks.
type CronClient struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewCronClient creates a client for the server at baseURL
func NewCronClient(baseURL, secret string, timeout time.Duration) *CronClient {
	return &CronClient{
		baseURL: baseURL,
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
	}
}

// Call issues an authenticated GET and fails on any non-2xx status
func (c *CronClient) Call(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	return body, nil
}

// Chain asks the server to run the next batch
func (c *CronClient) Chain(ctx context.Context, next ChainRequest) error {
	_, err := c.Call(ctx, UpdatePricesPath, next.Query())
	return err
}
