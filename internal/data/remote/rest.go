// Package remote implements the network collaborators: a REST client for
// historical queries and one-off RPCs, and a websocket transport for live
// change feeds.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusclub/livefeed/internal/core/feed"
	"github.com/campusclub/livefeed/internal/core/logging"
)

// RESTOptions configures a RESTClient.
type RESTOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	UserAgent  string
}

// RESTClient talks to the backend over HTTP. It implements feed.Querier
// and feed.RPCCaller. Network failures and server-side errors surface as
// feed.TransientError so callers retry them at the next natural refresh.
type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
	log        zerolog.Logger
}

func NewRESTClient(opts RESTOptions) *RESTClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &RESTClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		log:        logging.Component("rest"),
	}
}

type queryRequest struct {
	Table  string            `json:"table"`
	Filter map[string]string `json:"filter,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Cursor *feed.Cursor      `json:"cursor,omitempty"`
	Newest bool              `json:"newest,omitempty"`
}

type queryResponse struct {
	Records []feed.Record `json:"records"`
}

// Query runs one bounded historical read. Results arrive in the order the
// server returns them; callers sort as needed.
func (c *RESTClient) Query(ctx context.Context, q feed.Query) ([]feed.Record, error) {
	req := queryRequest{
		Table:  q.Table,
		Filter: q.Filter,
		Limit:  q.Limit,
		Cursor: q.Cursor,
		Newest: q.Newest,
	}

	var resp queryResponse
	if err := c.do(ctx, "/v1/query", req, &resp); err != nil {
		return nil, &feed.TransientError{Op: "query " + q.Table, Err: err}
	}
	return resp.Records, nil
}

// Call executes a named remote procedure. Failures are transient: the
// caller fires these for side effects like view-count increments and must
// not treat a miss as fatal.
func (c *RESTClient) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	var result map[string]any
	if err := c.do(ctx, "/v1/rpc/"+name, args, &result); err != nil {
		return nil, &feed.TransientError{Op: "rpc " + name, Err: err}
	}
	return result, nil
}

func (c *RESTClient) do(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, errorMessage(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && strings.TrimSpace(parsed.Message) != "" {
		return parsed.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
