package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Keller65/iSync-sub000/internal/cart"
	"github.com/Keller65/iSync-sub000/internal/orders"
)

type SubmitRequestDTO struct {
	CardCode    string `json:"cardCode"`
	PriceListID string `json:"priceListId"`
	Comments    string `json:"comments"`
}

func (a *API) submitOrder(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, a.orders.SubmitOrder)
}

func (a *API) submitConsignment(w http.ResponseWriter, r *http.Request) {
	a.submit(w, r, a.orders.SubmitConsignment)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request, send func(ctx context.Context, store *cart.Store, params orders.SubmitParams) (*orders.Receipt, error)) {
	var req SubmitRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	receipt, err := send(r.Context(), a.cart, orders.SubmitParams{
		CardCode:    req.CardCode,
		PriceListID: req.PriceListID,
		Comments:    req.Comments,
	})
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, receipt)
}
