package catalog

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/Keller65/iSync-sub000/internal/domain"
)

// maxSearchPages bounds the exhaustive search fetch so a pathological filter
// cannot walk an unbounded catalog.
const maxSearchPages = 50

type State int

const (
	StateIdle State = iota
	StateFetching
	StateLoaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

type Mode int

const (
	ModeBrowse Mode = iota
	ModeSearch
)

func (m Mode) String() string {
	if m == ModeSearch {
		return "search"
	}
	return "browse"
}

// Filter is the server-side slice of the catalog a screen is looking at.
// Changing it discards the page state entirely; pages from different filters
// are never merged.
type Filter struct {
	GroupCode   string
	PriceListID string
}

// ProductFetcher is what the pager needs from the catalog client.
type ProductFetcher interface {
	FetchProducts(ctx context.Context, params PageParams, override bool) ([]domain.Product, error)
}

// Snapshot is the pager state handed to the UI layer.
type Snapshot struct {
	Mode       Mode
	State      State
	Items      []domain.Product
	Page       int
	HasMore    bool
	SearchText string
	Err        error
}

// Pager owns the page state for one catalog screen instance. Two modes:
// browse (server-paginated, one page per fetch) and search (exhaustive fetch
// of all matching pages, then local substring filtering).
//
// Fetches for a single pager are serialized by an in-flight guard: a second
// call while one is running is a no-op, so rapid scroll events cannot stack
// duplicate requests. Independent pagers fetch concurrently.
type Pager struct {
	fetcher  ProductFetcher
	pageSize int
	debounce *Debouncer
	log      *slog.Logger

	mu         sync.Mutex
	filter     Filter
	mode       Mode
	state      State
	items      []domain.Product
	page       int
	hasMore    bool
	searchText string
	lastErr    error
	token      uint64 // bumped on every fetch start and every reset
	active     uint64 // token of the in-flight fetch, 0 when none
	cancel     context.CancelFunc
}

func NewPager(fetcher ProductFetcher, filter Filter, pageSize int, log *slog.Logger) *Pager {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Pager{
		fetcher:  fetcher,
		pageSize: pageSize,
		debounce: NewDebouncer(DefaultSearchDelay),
		log:      log,
		filter:   filter,
		mode:     ModeBrowse,
		state:    StateIdle,
	}
}

// LoadFirst fetches page 1, replacing any loaded items.
func (p *Pager) LoadFirst(ctx context.Context) error {
	return p.fetchPage(ctx, 1, false, false)
}

// LoadMore appends the next page. It is a no-op outside browse mode, when
// the catalog is exhausted, or while a fetch is already running.
func (p *Pager) LoadMore(ctx context.Context) error {
	p.mu.Lock()
	ok := p.mode == ModeBrowse && p.hasMore && p.state != StateFetching
	next := p.page + 1
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return p.fetchPage(ctx, next, true, false)
}

// Refresh refetches page 1 bypassing the response cache.
func (p *Pager) Refresh(ctx context.Context) error {
	return p.fetchPage(ctx, 1, false, true)
}

// SetFilter switches the screen to a different catalog slice. The current
// page state is discarded, any in-flight fetch is cancelled, and page 1 of
// the new slice is fetched.
func (p *Pager) SetFilter(ctx context.Context, filter Filter) error {
	ctx, token, f := p.startFresh(ctx, ModeBrowse, "", &filter)
	return p.runFetch(ctx, token, f, 1, false, false)
}

// Search switches to search mode for a non-empty term: all matching pages
// are fetched sequentially (bounded by maxSearchPages), then filtered
// locally across name, code and barcode. Incremental pagination is disabled
// once exhaustion completes. An empty term switches back to browse mode.
//
// Results arriving for a superseded term are discarded, never applied.
func (p *Pager) Search(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		ctx, token, filter := p.startFresh(ctx, ModeBrowse, "", nil)
		return p.runFetch(ctx, token, filter, 1, false, false)
	}

	ctx, token, filter := p.startFresh(ctx, ModeSearch, text, nil)

	var all []domain.Product
	page := 0
	for page < maxSearchPages {
		page++
		items, err := p.fetcher.FetchProducts(ctx, PageParams{
			GroupCode:   filter.GroupCode,
			PriceListID: filter.PriceListID,
			SearchText:  text,
			Page:        page,
			PageSize:    p.pageSize,
		}, false)
		if err != nil {
			p.finish(token, func() {
				p.state = StateError
				p.lastErr = err
			})
			return err
		}
		all = append(all, items...)
		if len(items) < p.pageSize {
			break
		}
	}

	matched := filterProducts(all, text)
	p.finish(token, func() {
		p.state = StateLoaded
		p.items = matched
		p.page = page
		p.hasMore = false
		p.lastErr = nil
	})
	return nil
}

// SearchDebounced schedules a Search after the debounce window, collapsing
// keystroke storms into one exhaustive fetch. A newer term supersedes the
// scheduled one.
func (p *Pager) SearchDebounced(text string) {
	p.debounce.Trigger(func() {
		if err := p.Search(context.Background(), text); err != nil {
			p.log.Warn("debounced search failed", "text", text, "error", err)
		}
	})
}

// Close cancels any in-flight fetch and pending debounced search. Called on
// screen unmount.
func (p *Pager) Close() {
	p.debounce.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.token++
	p.active = 0
}

// Snapshot returns a copy of the current page state for display.
func (p *Pager) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := make([]domain.Product, len(p.items))
	copy(items, p.items)
	return Snapshot{
		Mode:       p.mode,
		State:      p.state,
		Items:      items,
		Page:       p.page,
		HasMore:    p.hasMore,
		SearchText: p.searchText,
		Err:        p.lastErr,
	}
}

func (p *Pager) fetchPage(ctx context.Context, page int, appendItems, override bool) error {
	ctx, token, filter, ok := p.begin(ctx)
	if !ok {
		return nil
	}
	return p.runFetch(ctx, token, filter, page, appendItems, override)
}

func (p *Pager) runFetch(ctx context.Context, token uint64, filter Filter, page int, appendItems, override bool) error {
	items, err := p.fetcher.FetchProducts(ctx, PageParams{
		GroupCode:   filter.GroupCode,
		PriceListID: filter.PriceListID,
		Page:        page,
		PageSize:    p.pageSize,
	}, override)

	if err != nil {
		// Existing items survive a failed incremental fetch; the UI keeps
		// what it has plus a retry affordance.
		p.finish(token, func() {
			p.state = StateError
			p.lastErr = err
		})
		return err
	}

	p.finish(token, func() {
		p.state = StateLoaded
		if appendItems {
			p.items = append(p.items, items...)
		} else {
			p.items = items
		}
		p.page = page
		p.hasMore = len(items) == p.pageSize
		p.lastErr = nil
	})
	return nil
}

// begin claims the in-flight slot. The returned context is cancelled when
// the pager is restarted or closed while the fetch runs.
func (p *Pager) begin(parent context.Context) (context.Context, uint64, Filter, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != 0 {
		return nil, 0, Filter{}, false
	}
	p.token++
	p.active = p.token
	p.state = StateFetching

	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	return ctx, p.token, p.filter, true
}

// finish applies a completion only when the fetch has not been superseded by
// a reset in the meantime. Late results are discarded, not applied.
func (p *Pager) finish(token uint64, apply func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != token {
		return
	}
	p.active = 0
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	apply()
}

// startFresh discards the whole page state and claims the in-flight slot in
// one critical section. Cancelling the old fetch, superseding its token and
// minting the new one happen atomically, so two concurrent restarts cannot
// interleave: the later restart always holds the live token, and the earlier
// one finishes as a discarded no-op. Mode switches therefore never leak
// partial state from one mode into the other.
func (p *Pager) startFresh(parent context.Context, mode Mode, searchText string, newFilter *Filter) (context.Context, uint64, Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	if newFilter != nil {
		p.filter = *newFilter
	}
	p.mode = mode
	p.searchText = searchText
	p.items = nil
	p.page = 0
	p.hasMore = false
	p.lastErr = nil

	p.token++
	p.active = p.token
	p.state = StateFetching

	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	return ctx, p.token, p.filter
}

func filterProducts(items []domain.Product, term string) []domain.Product {
	term = strings.ToLower(term)
	matched := make([]domain.Product, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.ItemName), term) ||
			strings.Contains(strings.ToLower(it.ItemCode), term) ||
			strings.Contains(strings.ToLower(it.BarCode), term) {
			matched = append(matched, it)
		}
	}
	return matched
}
