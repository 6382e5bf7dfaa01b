package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mosly/envelope-stock/pkg/config"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
	"github.com/mosly/envelope-stock/pkg/types"
)

const (
	defaultAPIVersion     = "2024-10"
	defaultPageSize       = 250
	defaultMaxPages       = 40
	orderFields           = "id,name,created_at,line_items"
	responseBodyReadLimit = 1024
)

var (
	errStoreRequired       = errors.New("shopify store domain is required")
	errCredentialsRequired = errors.New("shopify access token or api key and password are required")
)

// Client reads orders from the Shopify Admin REST API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	apiPassword string
	accessToken string
	pageSize    int
	maxPages    int
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the admin API base URL derived from the store domain.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithPageSize overrides the number of orders requested per page.
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 && size <= defaultPageSize {
			c.pageSize = size
		}
	}
}

// NewClient builds the Shopify client from configuration.
func NewClient(cfg config.ShopifyConfig, opts ...Option) (*Client, error) {
	store := strings.TrimSpace(cfg.Store)
	if store == "" {
		return nil, errStoreRequired
	}
	token := strings.TrimSpace(cfg.AccessToken)
	key := strings.TrimSpace(cfg.APIKey)
	password := strings.TrimSpace(cfg.APIPassword)
	if token == "" && (key == "" || password == "") {
		return nil, errCredentialsRequired
	}

	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     fmt.Sprintf("https://%s/admin/api/%s", strings.TrimPrefix(store, "https://"), version),
		apiKey:      key,
		apiPassword: password,
		accessToken: token,
		pageSize:    defaultPageSize,
		maxPages:    maxPages,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type apiOrder struct {
	ID        json.Number `json:"id"`
	Name      string      `json:"name"`
	CreatedAt string      `json:"created_at"`
	LineItems []struct {
		Title    string `json:"title"`
		Quantity int    `json:"quantity"`
	} `json:"line_items"`
}

// FetchOrdersSince returns every order created after since, oldest first.
func (c *Client) FetchOrdersSince(ctx context.Context, since time.Time) ([]types.OrderEvent, error) {
	query := url.Values{}
	query.Set("created_at_min", since.UTC().Format(time.RFC3339))
	return c.listOrders(ctx, query)
}

// ListOrders returns orders created within [from, to], oldest first.
func (c *Client) ListOrders(ctx context.Context, from, to time.Time) ([]types.OrderEvent, error) {
	if to.Before(from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "range end must not be before its start")
	}
	query := url.Values{}
	query.Set("created_at_min", from.UTC().Format(time.RFC3339))
	query.Set("created_at_max", to.UTC().Format(time.RFC3339))
	return c.listOrders(ctx, query)
}

func (c *Client) listOrders(ctx context.Context, query url.Values) ([]types.OrderEvent, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "shopify client not configured")
	}
	query.Set("status", "any")
	query.Set("limit", strconv.Itoa(c.pageSize))
	query.Set("order", "created_at asc")
	query.Set("fields", orderFields)

	next := c.baseURL + "/orders.json?" + query.Encode()
	var orders []types.OrderEvent
	for page := 0; next != ""; page++ {
		if page >= c.maxPages {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("shopify pagination exceeded %d pages", c.maxPages))
		}
		batch, link, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, err
		}
		orders = append(orders, batch...)
		next = nextPageURL(link)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		left, lerr := time.Parse(time.RFC3339, orders[i].CreatedAt)
		right, rerr := time.Parse(time.RFC3339, orders[j].CreatedAt)
		if lerr != nil || rerr != nil {
			return orders[i].CreatedAt < orders[j].CreatedAt
		}
		return left.Before(right)
	})
	return orders, nil
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]types.OrderEvent, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build orders request")
	}
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	} else {
		req.SetBasicAuth(c.apiKey, c.apiPassword)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute orders request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		cause := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "orders request failed").
			WithDetails(map[string]any{"status": resp.StatusCode, "retry_after": resp.Header.Get("Retry-After")})
	}

	var payload struct {
		Orders []apiOrder `json:"orders"`
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode orders response")
	}

	out := make([]types.OrderEvent, 0, len(payload.Orders))
	for _, order := range payload.Orders {
		event := types.OrderEvent{
			ID:        order.ID.String(),
			Name:      order.Name,
			CreatedAt: order.CreatedAt,
			LineItems: make([]types.OrderLineItem, 0, len(order.LineItems)),
		}
		for _, item := range order.LineItems {
			event.LineItems = append(event.LineItems, types.OrderLineItem{Title: item.Title, Quantity: item.Quantity})
		}
		out = append(out, event)
	}
	return out, resp.Header.Get("Link"), nil
}

// nextPageURL extracts the rel="next" target from a Link header.
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}
		target := strings.TrimSpace(segments[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segments[1:] {
			if strings.ReplaceAll(strings.TrimSpace(param), " ", "") == `rel="next"` {
				return strings.Trim(target, "<>")
			}
		}
	}
	return ""
}
