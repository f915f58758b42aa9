package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Keller65/iSync-sub000/internal/domain"
	"github.com/Keller65/iSync-sub000/internal/pricing"
	"github.com/go-chi/chi/v5"
)

type AddLineRequestDTO struct {
	Product  domain.Product `json:"product"`
	Quantity int            `json:"quantity"`

	// OverridePrice is the raw text from the price field. Absent means the
	// engine-resolved default applies.
	OverridePrice *string `json:"overridePrice,omitempty"`
}

type UpdateLineRequestDTO struct {
	Quantity      int     `json:"quantity"`
	OverridePrice *string `json:"overridePrice,omitempty"`
}

type CartResponseDTO struct {
	Lines []domain.CartLine `json:"lines"`
	Total float64           `json:"total"`
	Count int               `json:"count"`
}

type PriceRejectionDTO struct {
	Error          string  `json:"error"`
	Code           string  `json:"code"`
	MinimumAllowed float64 `json:"minimumAllowed"`
}

func (a *API) getCart(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, a.cartView())
}

func (a *API) addLine(w http.ResponseWriter, r *http.Request) {
	var req AddLineRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Product.ItemCode == "" {
		a.respondError(w, http.StatusBadRequest, "invalid_itemCode", "itemCode is required")
		return
	}

	unitPrice := pricing.ResolveDefaultUnitPrice(req.Product.BasePrice, req.Product.Tiers, req.Quantity, a.tierPrice)
	if req.OverridePrice != nil {
		candidate := pricing.ParsePrice(*req.OverridePrice)
		result := pricing.ValidateOverride(req.Product.BasePrice, req.Product.Tiers, req.Quantity, a.tierPrice, candidate)
		if !result.Valid {
			// Rejected before the cart is touched; the floor travels with the
			// rejection so the UI can render it inline.
			a.respondJSON(w, http.StatusUnprocessableEntity, PriceRejectionDTO{
				Error:          "price below minimum",
				Code:           "price_below_minimum",
				MinimumAllowed: result.MinimumAllowed,
			})
			return
		}
		unitPrice = candidate
	}

	a.cart.UpsertLine(req.Product, req.Quantity, unitPrice, req.Product.Tiers)
	a.respondJSON(w, http.StatusCreated, a.cartView())
}

func (a *API) updateLine(w http.ResponseWriter, r *http.Request) {
	itemCode := chi.URLParam(r, "itemCode")

	var req UpdateLineRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	line, ok := a.cart.Line(itemCode)
	if !ok {
		a.respondError(w, http.StatusNotFound, "not_found", "no cart line for "+itemCode)
		return
	}

	// Tier eligibility follows quantity, so the default price is re-resolved
	// from the snapshot on every change. A manual override must be re-entered
	// alongside the new quantity.
	unitPrice := pricing.ResolveDefaultUnitPrice(line.BasePrice, line.Tiers, req.Quantity, a.tierPrice)
	if req.OverridePrice != nil {
		candidate := pricing.ParsePrice(*req.OverridePrice)
		result := pricing.ValidateOverride(line.BasePrice, line.Tiers, req.Quantity, a.tierPrice, candidate)
		if !result.Valid {
			a.respondJSON(w, http.StatusUnprocessableEntity, PriceRejectionDTO{
				Error:          "price below minimum",
				Code:           "price_below_minimum",
				MinimumAllowed: result.MinimumAllowed,
			})
			return
		}
		unitPrice = candidate
	}

	a.cart.SetQuantity(itemCode, req.Quantity, &unitPrice)
	a.respondJSON(w, http.StatusOK, a.cartView())
}

func (a *API) removeLine(w http.ResponseWriter, r *http.Request) {
	a.cart.RemoveLine(chi.URLParam(r, "itemCode"))
	a.respondJSON(w, http.StatusOK, a.cartView())
}

func (a *API) clearCart(w http.ResponseWriter, r *http.Request) {
	a.cart.Clear()
	a.respondJSON(w, http.StatusOK, a.cartView())
}

func (a *API) cartView() CartResponseDTO {
	lines := a.cart.Lines()
	return CartResponseDTO{
		Lines: lines,
		Total: a.cart.Total(),
		Count: len(lines),
	}
}
