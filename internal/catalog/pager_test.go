package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Keller65/iSync-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchCall struct {
	params   PageParams
	override bool
}

// mockFetcher pages over a fixed product list and records every call.
// When release is set, fetches block until it is closed or the context
// is cancelled.
type mockFetcher struct {
	mu      sync.Mutex
	items   []domain.Product
	err     error
	calls   []fetchCall
	release chan struct{}
	started chan struct{}
}

func (m *mockFetcher) FetchProducts(ctx context.Context, params PageParams, override bool) ([]domain.Product, error) {
	m.mu.Lock()
	m.calls = append(m.calls, fetchCall{params, override})
	items := m.items
	err := m.err
	release := m.release
	started := m.started
	m.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	start := (params.Page - 1) * params.PageSize
	if start >= len(items) {
		return []domain.Product{}, nil
	}
	end := start + params.PageSize
	if end > len(items) {
		end = len(items)
	}
	page := make([]domain.Product, end-start)
	copy(page, items[start:end])
	return page, nil
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockFetcher) call(i int) fetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

func (m *mockFetcher) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func genProducts(n int) []domain.Product {
	out := make([]domain.Product, n)
	for i := range out {
		out[i] = domain.Product{
			ItemCode:  fmt.Sprintf("P%03d", i),
			ItemName:  fmt.Sprintf("Item %03d", i),
			BarCode:   fmt.Sprintf("480%07d", i),
			BasePrice: 100,
		}
	}
	return out
}

func newTestPager(fetcher ProductFetcher) *Pager {
	return NewPager(fetcher, Filter{GroupCode: "G1"}, 20, slog.New(slog.DiscardHandler))
}

func TestLoadFirst_FullPageHasMore(t *testing.T) {
	fetcher := &mockFetcher{items: genProducts(45)}
	p := newTestPager(fetcher)

	require.NoError(t, p.LoadFirst(context.Background()))

	snap := p.Snapshot()
	assert.Equal(t, StateLoaded, snap.State)
	assert.Len(t, snap.Items, 20)
	assert.Equal(t, 1, snap.Page)
	assert.True(t, snap.HasMore)

	call := fetcher.call(0)
	assert.Equal(t, "G1", call.params.GroupCode)
	assert.Equal(t, 1, call.params.Page)
	assert.Equal(t, 20, call.params.PageSize)
	assert.False(t, call.override)
}

func TestLoadMore_TerminatesOnShortPage(t *testing.T) {
	fetcher := &mockFetcher{items: genProducts(45)}
	p := newTestPager(fetcher)
	ctx := context.Background()

	require.NoError(t, p.LoadFirst(ctx))
	require.NoError(t, p.LoadMore(ctx))
	require.NoError(t, p.LoadMore(ctx))

	snap := p.Snapshot()
	assert.Len(t, snap.Items, 45)
	assert.Equal(t, 3, snap.Page)
	assert.False(t, snap.HasMore, "short page means the catalog is exhausted")

	// Exhausted: further LoadMore must not hit the network.
	before := fetcher.callCount()
	require.NoError(t, p.LoadMore(ctx))
	assert.Equal(t, before, fetcher.callCount())
}

func TestLoadMore_ExactMultipleTerminatesOnEmptyPage(t *testing.T) {
	fetcher := &mockFetcher{items: genProducts(40)}
	p := newTestPager(fetcher)
	ctx := context.Background()

	require.NoError(t, p.LoadFirst(ctx))
	require.NoError(t, p.LoadMore(ctx))
	assert.True(t, p.Snapshot().HasMore, "a full page keeps pagination open")

	require.NoError(t, p.LoadMore(ctx))
	snap := p.Snapshot()
	assert.Len(t, snap.Items, 40)
	assert.False(t, snap.HasMore)
}

func TestFetchPage_InFlightGuard(t *testing.T) {
	fetcher := &mockFetcher{
		items:   genProducts(45),
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	p := newTestPager(fetcher)

	done := make(chan error, 1)
	go func() { done <- p.LoadFirst(context.Background()) }()

	<-fetcher.started

	// Second call while fetching is a no-op, not a queued duplicate.
	require.NoError(t, p.LoadFirst(context.Background()))
	assert.Equal(t, 1, fetcher.callCount())

	close(fetcher.release)
	require.NoError(t, <-done)
	assert.Len(t, p.Snapshot().Items, 20)
}

func TestFetchPage_ErrorPreservesItems(t *testing.T) {
	fetcher := &mockFetcher{items: genProducts(45)}
	p := newTestPager(fetcher)
	ctx := context.Background()

	require.NoError(t, p.LoadFirst(ctx))
	fetcher.setErr(&domain.NetworkError{Op: "GET /catalog/products", Err: context.DeadlineExceeded})

	err := p.LoadMore(ctx)
	require.Error(t, err)

	snap := p.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Len(t, snap.Items, 20, "a failed incremental fetch must not clear loaded items")
	assert.Equal(t, 1, snap.Page)
	assert.Error(t, snap.Err)

	// Retry succeeds once connectivity returns.
	fetcher.setErr(nil)
	require.NoError(t, p.LoadMore(ctx))
	assert.Len(t, p.Snapshot().Items, 40)
}

func TestRefresh_BypassesCache(t *testing.T) {
	fetcher := &mockFetcher{items: genProducts(5)}
	p := newTestPager(fetcher)
	ctx := context.Background()

	require.NoError(t, p.LoadFirst(ctx))
	require.NoError(t, p.Refresh(ctx))

	assert.False(t, fetcher.call(0).override)
	assert.True(t, fetcher.call(1).override)
}

func TestSearch_ExhaustiveFetchThenLocalFilter(t *testing.T) {
	items := genProducts(45)
	items[7].ItemName = "Barrel Aged Coffee"
	items[23].ItemCode = "COFFEE-23"
	items[31].BarCode = "COFFEE480"
	fetcher := &mockFetcher{items: items}
	p := newTestPager(fetcher)

	require.NoError(t, p.Search(context.Background(), "coffee"))

	snap := p.Snapshot()
	assert.Equal(t, ModeSearch, snap.Mode)
	assert.Equal(t, StateLoaded, snap.State)
	assert.False(t, snap.HasMore, "search disables incremental pagination")
	require.Len(t, snap.Items, 3, "match spans name, code and barcode")

	// All three pages were walked before filtering.
	require.Equal(t, 3, fetcher.callCount())
	for i := 0; i < 3; i++ {
		call := fetcher.call(i)
		assert.Equal(t, i+1, call.params.Page)
		assert.Equal(t, "coffee", call.params.SearchText)
	}
}

func TestSearch_StopsAtPageCap(t *testing.T) {
	// An endless catalog: every page comes back full.
	fetcher := &mockFetcher{items: genProducts(maxSearchPages*20 + 200)}
	p := newTestPager(fetcher)

	require.NoError(t, p.Search(context.Background(), "item"))

	assert.Equal(t, maxSearchPages, fetcher.callCount())
	assert.False(t, p.Snapshot().HasMore)
}

func TestSearch_EmptyTermReturnsToBrowse(t *testing.T) {
	fetcher := &mockFetcher{items: genProducts(45)}
	p := newTestPager(fetcher)
	ctx := context.Background()

	require.NoError(t, p.Search(ctx, "item 003"))
	require.Equal(t, ModeSearch, p.Snapshot().Mode)

	require.NoError(t, p.Search(ctx, "  "))

	snap := p.Snapshot()
	assert.Equal(t, ModeBrowse, snap.Mode)
	assert.Len(t, snap.Items, 20)
	assert.True(t, snap.HasMore)
}

func TestSearch_ModeSwitchDiscardsBrowseState(t *testing.T) {
	fetcher := &mockFetcher{items: genProducts(45)}
	p := newTestPager(fetcher)
	ctx := context.Background()

	require.NoError(t, p.LoadFirst(ctx))
	require.NoError(t, p.LoadMore(ctx))
	require.Len(t, p.Snapshot().Items, 40)

	require.NoError(t, p.Search(ctx, "item 001"))

	snap := p.Snapshot()
	assert.Equal(t, ModeSearch, snap.Mode)
	assert.Len(t, snap.Items, 1, "browse pages must not leak into search results")
	assert.Equal(t, 1, snap.Page)
}

func TestSearch_SupersededResultsDiscarded(t *testing.T) {
	fetcher := &mockFetcher{
		items:   genProducts(5),
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	p := newTestPager(fetcher)

	oldDone := make(chan error, 1)
	go func() { oldDone <- p.Search(context.Background(), "item 000") }()
	<-fetcher.started

	// A newer term supersedes the in-flight search; the old chain is
	// cancelled and its late result must not overwrite the new state.
	fetcher.mu.Lock()
	fetcher.release = nil
	fetcher.mu.Unlock()

	require.NoError(t, p.Search(context.Background(), "item 004"))
	<-oldDone

	snap := p.Snapshot()
	assert.Equal(t, "item 004", snap.SearchText)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "P004", snap.Items[0].ItemCode)
}

func TestSearchDebounced_CollapsesKeystrokeBurst(t *testing.T) {
	fetcher := &mockFetcher{items: genProducts(5)}
	p := newTestPager(fetcher)

	// Keystroke storm: only the final term may reach the network.
	for _, term := range []string{"i", "it", "ite", "item 004"} {
		p.SearchDebounced(term)
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return p.Snapshot().State == StateLoaded
	}, 2*time.Second, 10*time.Millisecond)

	snap := p.Snapshot()
	assert.Equal(t, ModeSearch, snap.Mode)
	assert.Equal(t, "item 004", snap.SearchText)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "P004", snap.Items[0].ItemCode)

	assert.Equal(t, 1, fetcher.callCount(), "intermediate terms never fetch")
}

func TestSearch_ConcurrentRestartsStayConsistent(t *testing.T) {
	// Two searches racing each other: whichever term the pager settles on,
	// the items must belong to that term. A restart claims its token in the
	// same critical section that discards state, so an older search can
	// never apply its results under the newer term.
	for i := 0; i < 50; i++ {
		fetcher := &mockFetcher{items: genProducts(10)}
		p := newTestPager(fetcher)

		var wg sync.WaitGroup
		for _, term := range []string{"item 000", "item 004"} {
			term := term
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Search(context.Background(), term)
			}()
		}
		wg.Wait()

		snap := p.Snapshot()
		require.Contains(t, []string{"item 000", "item 004"}, snap.SearchText)
		if snap.State == StateLoaded {
			require.Len(t, snap.Items, 1)
			assert.Equal(t, snap.SearchText, strings.ToLower(snap.Items[0].ItemName))
		}
	}
}

func TestSetFilter_DiscardsStateAndRefetches(t *testing.T) {
	fetcher := &mockFetcher{items: genProducts(45)}
	p := newTestPager(fetcher)
	ctx := context.Background()

	require.NoError(t, p.LoadFirst(ctx))
	require.NoError(t, p.LoadMore(ctx))

	require.NoError(t, p.SetFilter(ctx, Filter{GroupCode: "G2"}))

	snap := p.Snapshot()
	assert.Equal(t, 1, snap.Page)
	assert.Len(t, snap.Items, 20)

	last := fetcher.call(fetcher.callCount() - 1)
	assert.Equal(t, "G2", last.params.GroupCode)
	assert.Equal(t, 1, last.params.Page)
}

func TestClose_CancelsInFlightFetch(t *testing.T) {
	fetcher := &mockFetcher{
		items:   genProducts(45),
		release: make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	p := newTestPager(fetcher)

	done := make(chan error, 1)
	go func() { done <- p.LoadFirst(context.Background()) }()
	<-fetcher.started

	p.Close()

	require.Error(t, <-done)
	snap := p.Snapshot()
	assert.Empty(t, snap.Items, "cancelled fetch must not apply")
	assert.NotEqual(t, StateLoaded, snap.State)
}

func TestSnapshot_IsDetached(t *testing.T) {
	fetcher := &mockFetcher{items: genProducts(5)}
	p := newTestPager(fetcher)
	require.NoError(t, p.LoadFirst(context.Background()))

	snap := p.Snapshot()
	snap.Items[0].ItemName = "mutated"

	assert.Equal(t, "Item 000", p.Snapshot().Items[0].ItemName)
}

func TestDebouncer_CollapsesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var mu sync.Mutex
	var fired []string
	for _, term := range []string{"c", "co", "cof", "coffee"} {
		term := term
		d.Trigger(func() {
			mu.Lock()
			fired = append(fired, term)
			mu.Unlock()
		})
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"coffee"}, fired)
	mu.Unlock()
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	fired := make(chan struct{}, 1)
	d.Trigger(func() { fired <- struct{}{} })
	d.Stop()

	select {
	case <-fired:
		t.Fatal("stopped debouncer must not fire")
	case <-time.After(80 * time.Millisecond):
	}
}
