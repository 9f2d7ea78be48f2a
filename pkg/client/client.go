// Package client is the consumer side of the mirror: an HTTP client for the
// API, a memoized item cache for in-process filtering, and a search session
// that turns keystrokes into ordered, debounced queries.
package client

import (
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

	"github.com/rubiojr/cmsmirror/pkg/api"
	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/log"
	"github.com/rubiojr/cmsmirror/pkg/search"
)

const maxErrorBody = 1024

type Config struct {
	// BaseURL is the mirror server, e.g. http://localhost:8080.
	BaseURL string
	// SyncSecret is sent as a bearer token to /api/sync.
	SyncSecret string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	logger  *log.Logger
}

func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if cfg.Timeout > 0 {
		copied := *hc
		copied.Timeout = cfg.Timeout
		hc = &copied
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  cfg.SyncSecret,
		http:    hc,
		logger:  log.ForService("client"),
	}
}

// Search queries /api/search. An empty collections means all.
func (c *Client) Search(ctx context.Context, query, collections string, limit int) (*search.SearchResults, error) {
	q := url.Values{}
	q.Set("q", query)
	if collections != "" {
		q.Set("collections", collections)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out search.SearchResults
	if err := c.do(ctx, http.MethodGet, "/api/search?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Data fetches every item of the given collections from /api/data.
func (c *Client) Data(ctx context.Context, collections string) ([]core.Item, error) {
	path := "/api/data"
	if collections != "" {
		path += "?" + url.Values{"collections": {collections}}.Encode()
	}

	var out api.DataResponse
	if err := c.do(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Sync asks the server to run a sync and waits for the report.
func (c *Client) Sync(ctx context.Context) (*core.SyncReport, error) {
	var out api.SyncResponse
	if err := c.do(ctx, http.MethodPost, "/api/sync", &out); err != nil {
		return nil, err
	}
	if out.SyncReport == nil {
		return nil, fmt.Errorf("sync response carried no report")
	}
	return out.SyncReport, nil
}

func (c *Client) do(ctx context.Context, method, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &core.UpstreamError{Op: method + " " + path, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warnf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(method+" "+path, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr api.ErrorResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
		if apiErr.Details != "" {
			msg += ": " + apiErr.Details
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &core.AuthError{Msg: msg}
	case http.StatusNotFound:
		return &core.NotFoundError{What: msg}
	case http.StatusBadRequest:
		return &core.ValidationError{Field: "request", Msg: msg}
	}
	upErr := &core.UpstreamError{Op: op, Status: resp.StatusCode, Body: msg}
	if msg != "" {
		upErr.Err = errors.New(msg)
	}
	return upErr
}
