package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Keller65/iSync-sub000/internal/catalog"
	"github.com/Keller65/iSync-sub000/internal/domain"
)

type BrowseRequestDTO struct {
	GroupCode   string `json:"groupCode"`
	PriceListID string `json:"priceListId"`
}

type SearchRequestDTO struct {
	Text string `json:"text"`
}

type CatalogStateDTO struct {
	Mode       string           `json:"mode"`
	State      string           `json:"state"`
	Items      []domain.Product `json:"items"`
	Page       int              `json:"page"`
	HasMore    bool             `json:"hasMore"`
	SearchText string           `json:"searchText,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// browseCatalog points the screen at a catalog slice. A changed filter
// rebuilds the pager, discarding the previous slice's pages outright.
func (a *API) browseCatalog(w http.ResponseWriter, r *http.Request) {
	var req BrowseRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	filter := catalog.Filter{GroupCode: req.GroupCode, PriceListID: req.PriceListID}

	a.mu.Lock()
	if filter != a.filter {
		a.pager.Close()
		a.pager = catalog.NewPager(a.catalog, filter, a.pageSize, a.log)
		a.filter = filter
	}
	pager := a.pager
	a.mu.Unlock()

	if err := pager.LoadFirst(r.Context()); err != nil {
		a.respondDomainError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, stateDTO(pager.Snapshot()))
}

func (a *API) loadMoreCatalog(w http.ResponseWriter, r *http.Request) {
	pager := a.currentPager()
	if err := pager.LoadMore(r.Context()); err != nil {
		a.respondDomainError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, stateDTO(pager.Snapshot()))
}

func (a *API) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	pager := a.currentPager()
	if err := pager.Refresh(r.Context()); err != nil {
		a.respondDomainError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, stateDTO(pager.Snapshot()))
}

func (a *API) searchCatalog(w http.ResponseWriter, r *http.Request) {
	var req SearchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	pager := a.currentPager()
	if err := pager.Search(r.Context(), req.Text); err != nil {
		a.respondDomainError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, stateDTO(pager.Snapshot()))
}

// searchKeystroke forwards one keystroke of the search field. The pager
// debounces the burst and runs a single exhaustive search for the final
// term; the UI polls /state for the result. Responds 202 immediately.
func (a *API) searchKeystroke(w http.ResponseWriter, r *http.Request) {
	var req SearchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	a.currentPager().SearchDebounced(req.Text)
	a.respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (a *API) catalogState(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, stateDTO(a.currentPager().Snapshot()))
}

func (a *API) getCategories(w http.ResponseWriter, r *http.Request) {
	override := r.URL.Query().Get("refresh") == "true"
	categories, err := a.catalog.FetchCategories(r.Context(), override)
	if err != nil {
		a.respondDomainError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, categories)
}

// clearCache drops cached responses under a key prefix. No prefix clears
// nothing; the caller must say what to drop.
func (a *API) clearCache(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		a.respondError(w, http.StatusBadRequest, "invalid_prefix", "prefix query parameter is required")
		return
	}
	if err := a.cache.RemovePrefix(r.Context(), prefix); err != nil {
		a.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) currentPager() *catalog.Pager {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pager
}

func stateDTO(s catalog.Snapshot) CatalogStateDTO {
	dto := CatalogStateDTO{
		Mode:       s.Mode.String(),
		State:      s.State.String(),
		Items:      s.Items,
		Page:       s.Page,
		HasMore:    s.HasMore,
		SearchText: s.SearchText,
	}
	if s.Err != nil {
		dto.Error = s.Err.Error()
	}
	return dto
}
