package shopify

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosly/envelope-stock/pkg/config"
	pkgerrors "github.com/mosly/envelope-stock/pkg/errors"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     header,
	}
}

func testConfig() config.ShopifyConfig {
	return config.ShopifyConfig{
		Store:       "mosly.myshopify.com",
		APIKey:      "key",
		APIPassword: "secret",
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(config.ShopifyConfig{})
	require.ErrorIs(t, err, errStoreRequired)

	_, err = NewClient(config.ShopifyConfig{Store: "mosly.myshopify.com", APIKey: "key"})
	require.ErrorIs(t, err, errCredentialsRequired)

	client, err := NewClient(config.ShopifyConfig{Store: "mosly.myshopify.com", AccessToken: "shpat"})
	require.NoError(t, err)
	assert.Equal(t, "https://mosly.myshopify.com/admin/api/2024-10", client.baseURL)
	assert.Equal(t, defaultMaxPages, client.maxPages)
}

func TestFetchOrdersSinceBuildsQueryAndMapsOrders(t *testing.T) {
	since := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	body := `{"orders":[
		{"id":5002,"name":"#1002","created_at":"2025-03-01T11:00:00+01:00","line_items":[{"title":"Tea","quantity":2}]},
		{"id":5001,"name":"#1001","created_at":"2025-03-01T10:30:00+01:00","line_items":[{"title":"Express","quantity":1},{"title":"Cup","quantity":3}]}
	]}`

	var captured *http.Request
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, body, nil), nil
	})

	client, err := NewClient(testConfig(), WithBaseURL("http://shop.test/admin/api/2024-10"), WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	orders, err := client.FetchOrdersSince(context.Background(), since)
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "/admin/api/2024-10/orders.json", captured.URL.Path)
	query := captured.URL.Query()
	assert.Equal(t, "any", query.Get("status"))
	assert.Equal(t, "250", query.Get("limit"))
	assert.Equal(t, "2025-03-01T08:00:00Z", query.Get("created_at_min"))
	assert.Empty(t, query.Get("created_at_max"))
	user, pass, ok := captured.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "key", user)
	assert.Equal(t, "secret", pass)

	require.Len(t, orders, 2)
	assert.Equal(t, "5001", orders[0].ID)
	assert.Equal(t, "#1001", orders[0].Name)
	require.Len(t, orders[0].LineItems, 2)
	assert.Equal(t, "Cup", orders[0].LineItems[1].Title)
	assert.Equal(t, 3, orders[0].LineItems[1].Quantity)
	assert.Equal(t, "5002", orders[1].ID)
}

func TestFetchOrdersFollowsNextLink(t *testing.T) {
	calls := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if req.URL.Query().Get("page_info") == "abc" {
			return jsonResponse(http.StatusOK, `{"orders":[{"id":2,"name":"#2","created_at":"2025-03-02T00:00:00Z","line_items":[]}]}`, nil), nil
		}
		header := http.Header{}
		header.Set("Link", `<http://shop.test/api/orders.json?limit=250&page_info=abc>; rel="next"`)
		return jsonResponse(http.StatusOK, `{"orders":[{"id":1,"name":"#1","created_at":"2025-03-01T00:00:00Z","line_items":[]}]}`, header), nil
	})

	client, err := NewClient(testConfig(), WithBaseURL("http://shop.test/api"), WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	orders, err := client.FetchOrdersSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, orders, 2)
	assert.Equal(t, "1", orders[0].ID)
	assert.Equal(t, "2", orders[1].ID)
}

func TestFetchOrdersStopsAtMaxPages(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		header := http.Header{}
		header.Set("Link", `<http://shop.test/api/orders.json?page_info=loop>; rel="next"`)
		return jsonResponse(http.StatusOK, `{"orders":[]}`, header), nil
	})
	cfg := testConfig()
	cfg.MaxPages = 3
	client, err := NewClient(cfg, WithBaseURL("http://shop.test/api"), WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	_, err = client.FetchOrdersSince(context.Background(), time.Time{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
}

func TestFetchOrdersMapsFailuresToDependency(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		header := http.Header{}
		header.Set("Retry-After", "2.0")
		return jsonResponse(http.StatusTooManyRequests, `{"errors":"Exceeded 2 calls per second"}`, header), nil
	})
	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	_, err = client.FetchOrdersSince(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "429")
}

func TestFetchOrdersUsesAccessTokenHeader(t *testing.T) {
	var token string
	var basic bool
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		token = req.Header.Get("X-Shopify-Access-Token")
		_, _, basic = req.BasicAuth()
		return jsonResponse(http.StatusOK, `{"orders":[]}`, nil), nil
	})
	client, err := NewClient(config.ShopifyConfig{Store: "mosly.myshopify.com", AccessToken: "shpat_1"}, WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	orders, err := client.FetchOrdersSince(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, "shpat_1", token)
	assert.False(t, basic)
}

func TestListOrdersRange(t *testing.T) {
	var query map[string][]string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		query = req.URL.Query()
		return jsonResponse(http.StatusOK, `{"orders":[]}`, nil), nil
	})
	client, err := NewClient(testConfig(), WithHTTPClient(&http.Client{Transport: rt}))
	require.NoError(t, err)

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 7, 23, 59, 59, 0, time.UTC)
	_, err = client.ListOrders(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-01T00:00:00Z"}, query["created_at_min"])
	assert.Equal(t, []string{"2025-03-07T23:59:59Z"}, query["created_at_max"])

	_, err = client.ListOrders(context.Background(), to, from)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestNextPageURL(t *testing.T) {
	link := `<https://s/orders.json?page_info=prev>; rel="previous", <https://s/orders.json?page_info=nxt>; rel="next"`
	assert.Equal(t, "https://s/orders.json?page_info=nxt", nextPageURL(link))
	assert.Empty(t, nextPageURL(`<https://s/orders.json?page_info=prev>; rel="previous"`))
	assert.Empty(t, nextPageURL(""))
}
