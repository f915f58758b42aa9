// Package catalog fetches product pages from the ERP catalog service and
// drives the per-screen pagination state machine.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Keller65/iSync-sub000/internal/cache"
	"github.com/Keller65/iSync-sub000/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TokenFunc supplies the current bearer token. The auth layer owns refresh;
// the catalog client just asks for whatever is valid right now.
type TokenFunc func() string

// PageParams selects one page of the remote catalog.
type PageParams struct {
	GroupCode   string
	PriceListID string
	SearchText  string
	Page        int
	PageSize    int
}

type Config struct {
	BaseURL string
	Token   TokenFunc
	Tenant  string
	Cache   *cache.ResponseCache
	Logger  *slog.Logger

	// ProductsTTL defaults to 5 minutes; CategoriesTTL defaults to forever
	// (categories only change on assortment updates, which come with an
	// explicit refresh).
	ProductsTTL   time.Duration
	CategoriesTTL time.Duration

	HTTPTimeout time.Duration
}

// Client is the cache-aware HTTP access to the ERP catalog. Network legs run
// behind a circuit breaker; with the breaker open the response cache falls
// back to stale entries, so a flapping link degrades to old data instead of
// spinners.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	token         TokenFunc
	tenant        string
	cache         *cache.ResponseCache
	breaker       *gobreaker.CircuitBreaker[[]byte]
	productsTTL   time.Duration
	categoriesTTL time.Duration
	log           *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Token == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("response cache is required")
	}

	productsTTL := cfg.ProductsTTL
	if productsTTL == 0 {
		productsTTL = 5 * time.Minute
	}
	categoriesTTL := cfg.CategoriesTTL
	if categoriesTTL == 0 {
		categoriesTTL = cache.TTLForever
	}
	timeout := cfg.HTTPTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "erp-catalog",
		Timeout: 30 * time.Second,
	})

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		token:         cfg.Token,
		tenant:        cfg.Tenant,
		cache:         cfg.Cache,
		breaker:       breaker,
		productsTTL:   productsTTL,
		categoriesTTL: categoriesTTL,
		log:           cfg.Logger,
	}, nil
}

// FetchProducts returns one catalog page. Responses are cached per page;
// override forces a refetch and replaces the cached entry.
func (c *Client) FetchProducts(ctx context.Context, params PageParams, override bool) ([]domain.Product, error) {
	query := url.Values{}
	if params.GroupCode != "" {
		query.Set("groupCode", params.GroupCode)
	}
	if params.PriceListID != "" {
		query.Set("priceListId", params.PriceListID)
	}
	if params.SearchText != "" {
		query.Set("search", params.SearchText)
	}
	query.Set("page", strconv.Itoa(params.Page))
	query.Set("pageSize", strconv.Itoa(params.PageSize))

	data, err := c.getCached(ctx, "/catalog/products", query, c.productsTTL, override)
	if err != nil {
		return nil, err
	}
	return decodeProducts(data), nil
}

// FetchCategories returns the category list. Cached forever until an
// override refresh or a cache clear.
func (c *Client) FetchCategories(ctx context.Context, override bool) ([]domain.Category, error) {
	data, err := c.getCached(ctx, "/catalog/categories", nil, c.categoriesTTL, override)
	if err != nil {
		return nil, err
	}
	return decodeCategories(data), nil
}

// InvalidateCatalog drops all cached catalog responses without touching
// entries outside the catalog subtree.
func (c *Client) InvalidateCatalog(ctx context.Context) error {
	return c.cache.RemovePrefix(ctx, "GET "+c.baseURL+"/catalog/")
}

func (c *Client) getCached(ctx context.Context, path string, query url.Values, ttl time.Duration, override bool) ([]byte, error) {
	var headers map[string]string
	if c.tenant != "" {
		headers = map[string]string{"X-Tenant": c.tenant}
	}

	req := cache.Request{
		Method:   http.MethodGet,
		URL:      c.baseURL + path,
		Query:    query,
		Headers:  headers,
		TTL:      ttl,
		Override: override,
	}

	res, err := c.cache.Get(ctx, req, func(ctx context.Context) ([]byte, error) {
		return c.breaker.Execute(func() ([]byte, error) {
			return c.doGet(ctx, path, query)
		})
	})
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token())
	if c.tenant != "" {
		req.Header.Set("X-Tenant", c.tenant)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.NetworkError{Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.NetworkError{Op: "GET " + path, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &domain.ServerError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return body, nil
}

// decodeProducts normalizes the two response shapes observed in the wild:
// an {items: [...]} envelope and a bare array. Anything else is an empty
// list rather than an error.
func decodeProducts(data []byte) []domain.Product {
	var wrapper struct {
		Items []domain.Product `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Items != nil {
		return wrapper.Items
	}

	var list []domain.Product
	if err := json.Unmarshal(data, &list); err == nil && list != nil {
		return list
	}

	return []domain.Product{}
}

func decodeCategories(data []byte) []domain.Category {
	var wrapper struct {
		Items []domain.Category `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Items != nil {
		return wrapper.Items
	}

	var list []domain.Category
	if err := json.Unmarshal(data, &list); err == nil && list != nil {
		return list
	}

	return []domain.Category{}
}
