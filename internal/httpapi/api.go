// Package httpapi exposes the session engine to the UI shell over loopback
// HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Keller65/iSync-sub000/internal/cache"
	"github.com/Keller65/iSync-sub000/internal/cart"
	"github.com/Keller65/iSync-sub000/internal/catalog"
	"github.com/Keller65/iSync-sub000/internal/domain"
	"github.com/Keller65/iSync-sub000/internal/orders"
)

// CatalogService is what the handlers need from the catalog client.
type CatalogService interface {
	catalog.ProductFetcher
	FetchCategories(ctx context.Context, override bool) ([]domain.Category, error)
}

// OrderService is what the handlers need from the order submitter.
type OrderService interface {
	SubmitOrder(ctx context.Context, store *cart.Store, params orders.SubmitParams) (*orders.Receipt, error)
	SubmitConsignment(ctx context.Context, store *cart.Store, params orders.SubmitParams) (*orders.Receipt, error)
}

type Config struct {
	Cart      *cart.Store
	Catalog   CatalogService
	Orders    OrderService
	Cache     *cache.ResponseCache
	Logger    *slog.Logger
	PageSize  int
	TierPrice bool // apply volume-discount tiers when resolving prices
}

// API holds the handler state. One catalog pager exists per active filter;
// switching the filter rebuilds it, so pages from different filters never mix.
type API struct {
	cart      *cart.Store
	catalog   CatalogService
	orders    OrderService
	cache     *cache.ResponseCache
	log       *slog.Logger
	pageSize  int
	tierPrice bool

	mu     sync.Mutex
	pager  *catalog.Pager
	filter catalog.Filter
}

func New(cfg Config) *API {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	a := &API{
		cart:      cfg.Cart,
		catalog:   cfg.Catalog,
		orders:    cfg.Orders,
		cache:     cfg.Cache,
		log:       cfg.Logger,
		pageSize:  pageSize,
		tierPrice: cfg.TierPrice,
	}
	a.pager = catalog.NewPager(cfg.Catalog, catalog.Filter{}, pageSize, cfg.Logger)
	return a
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (a *API) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.Warn("failed to encode response", "error", err)
	}
}

func (a *API) respondError(w http.ResponseWriter, status int, code, message string) {
	a.respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondDomainError maps the error taxonomy onto HTTP. Upstream rejections
// pass through with their original status and message; connectivity failures
// become 503 so the UI shows its offline affordance.
func (a *API) respondDomainError(w http.ResponseWriter, err error) {
	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		a.respondError(w, http.StatusBadRequest, "invalid_"+valErr.Field, valErr.Error())
		return
	}

	var serverErr *domain.ServerError
	if errors.As(err, &serverErr) {
		a.respondError(w, serverErr.Status, "upstream_rejected", serverErr.Message)
		return
	}

	var netErr *domain.NetworkError
	if errors.As(err, &netErr) {
		a.respondError(w, http.StatusServiceUnavailable, "offline", netErr.Error())
		return
	}

	a.respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
}
