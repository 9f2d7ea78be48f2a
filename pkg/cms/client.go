// Package cms talks to the upstream CMS API: it lists a site's collections
// and pages through each collection's items.
package cms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/log"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL  = "https://api.webflow.com/v2"
	DefaultPageSize = 100
	maxErrorBody    = 1024
)

// Config holds what the client needs to reach one site.
type Config struct {
	BaseURL  string
	SiteID   string
	APIToken string
	PageSize int
	Timeout  time.Duration
	// HTTPClient is the base client the bearer-token transport wraps.
	// Tests point it at an httptest server.
	HTTPClient *http.Client
}

// Client is a read-only CMS API client.
type Client struct {
	baseURL  string
	siteID   string
	pageSize int
	http     *http.Client
	logger   *log.Logger
}

// Page is one response of the items endpoint.
type Page struct {
	Items      []APIItem  `json:"items"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// APIItem is an item as the CMS returns it.
type APIItem struct {
	ID         string         `json:"id"`
	IsDraft    bool           `json:"isDraft"`
	IsArchived bool           `json:"isArchived"`
	FieldData  core.FieldData `json:"fieldData"`
}

type collectionsResponse struct {
	Collections []core.Collection `json:"collections"`
}

// New builds a client. A missing token or site id is a configuration error.
func New(cfg Config) (*Client, error) {
	if cfg.APIToken == "" {
		return nil, &core.ConfigError{Setting: "cms.api_token", Msg: "not configured"}
	}
	if cfg.SiteID == "" {
		return nil, &core.ConfigError{Setting: "cms.site_id", Msg: "not configured"}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.APIToken},
	)
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = timeout

	return &Client{
		baseURL:  baseURL,
		siteID:   cfg.SiteID,
		pageSize: pageSize,
		http:     hc,
		logger:   log.ForService("cms"),
	}, nil
}

// PageSize is the default page size used by FetchAll.
func (c *Client) PageSize() int {
	return c.pageSize
}

// ListCollections returns every collection of the configured site.
func (c *Client) ListCollections(ctx context.Context) ([]core.Collection, error) {
	endpoint := fmt.Sprintf("%s/sites/%s/collections", c.baseURL, url.PathEscape(c.siteID))

	var resp collectionsResponse
	if err := c.getJSON(ctx, "list collections", endpoint, &resp); err != nil {
		return nil, err
	}
	c.logger.Debugf("Site %s has %d collections", c.siteID, len(resp.Collections))
	return resp.Collections, nil
}

// FetchAll pages through a collection with the client's page size.
func (c *Client) FetchAll(ctx context.Context, collectionID string) ([]APIItem, error) {
	return c.FetchAllItems(ctx, collectionID, c.pageSize)
}

// FetchAllItems retrieves every item of a collection using offset/limit
// paging. A page shorter than pageSize ends the walk. The reported total ends
// it too when the items seen so far add up to it exactly; once they exceed
// it the total is known to be wrong and only short pages count. Any failed
// page aborts the whole fetch.
func (c *Client) FetchAllItems(ctx context.Context, collectionID string, pageSize int) ([]APIItem, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var (
		items        []APIItem
		offset       int
		requests     int
		totalIsBogus bool
	)
	for {
		page, err := c.fetchPage(ctx, collectionID, offset, pageSize)
		if err != nil {
			return nil, err
		}
		requests++
		items = append(items, page.Items...)

		if len(page.Items) < pageSize {
			break
		}
		total := page.Pagination.Total
		if len(items) > total {
			totalIsBogus = true
		}
		if !totalIsBogus && total > 0 && len(items) == total {
			break
		}
		offset += pageSize
	}

	if items == nil {
		items = []APIItem{}
	}
	c.logger.Debugf("Fetched %d items from collection %s in %d requests", len(items), collectionID, requests)
	return items, nil
}

func (c *Client) fetchPage(ctx context.Context, collectionID string, offset, limit int) (*Page, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/collections/%s/items?%s", c.baseURL, url.PathEscape(collectionID), q.Encode())

	var page Page
	if err := c.getJSON(ctx, "fetch items", endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &core.UpstreamError{Op: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warnf("Failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &core.UpstreamError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return &core.UpstreamError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
