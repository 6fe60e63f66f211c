package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	testutil "github.com/jinford/book-rag/internal/module/indexing/testing"
	"github.com/jinford/book-rag/internal/module/search/application"
)

func TestIndexRegistry_ConcurrentFirstLoadLoadsOnce(t *testing.T) {
	idx := buildIndex(t, bookdomain.BookDebtCrisis, "debt cycles", "deleveraging")
	store := &testutil.MockIndexStore{
		LoadFunc: func(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error) {
			time.Sleep(50 * time.Millisecond)
			return idx, nil
		},
	}
	registry := application.NewIndexRegistry(bookdomain.DefaultCatalog(), store)

	const callers = 20
	var wg sync.WaitGroup
	results := make([]*bookdomain.BookIndex, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = registry.Get(context.Background(), bookdomain.BookDebtCrisis)
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Same(t, idx, results[i])
	}
	assert.Equal(t, 1, store.Loads())
	assert.Equal(t, []bookdomain.BookID{bookdomain.BookDebtCrisis}, registry.Loaded())
}

func TestIndexRegistry_FailedLoadIsNotMemoized(t *testing.T) {
	idx := buildIndex(t, bookdomain.BookCapitalism, "markets")
	fail := true
	store := &testutil.MockIndexStore{
		LoadFunc: func(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error) {
			if fail {
				return nil, errors.New("disk unavailable")
			}
			return idx, nil
		},
	}
	registry := application.NewIndexRegistry(bookdomain.DefaultCatalog(), store)

	_, err := registry.Get(context.Background(), bookdomain.BookCapitalism)
	require.Error(t, err)
	assert.ErrorIs(t, err, bookdomain.ErrIndexNotLoaded)
	assert.Empty(t, registry.Loaded())

	fail = false
	got, err := registry.Get(context.Background(), bookdomain.BookCapitalism)
	require.NoError(t, err)
	assert.Same(t, idx, got)
	assert.Equal(t, 2, store.Loads())
}

func TestIndexRegistry_MissingIndex(t *testing.T) {
	registry := application.NewIndexRegistry(bookdomain.DefaultCatalog(), &testutil.MockIndexStore{})

	_, err := registry.Get(context.Background(), bookdomain.BookDebtCrisis)
	assert.ErrorIs(t, err, bookdomain.ErrIndexNotLoaded)
}

func TestIndexRegistry_InvalidBook(t *testing.T) {
	store := &testutil.MockIndexStore{}
	registry := application.NewIndexRegistry(bookdomain.DefaultCatalog(), store)

	_, err := registry.Get(context.Background(), bookdomain.BookID(42))
	assert.ErrorIs(t, err, bookdomain.ErrInvalidBook)
	assert.Zero(t, store.Loads())

	// カタログに登録されていない書籍
	only := bookdomain.Catalog{bookdomain.BookDebtCrisis: bookdomain.DefaultCatalog()[bookdomain.BookDebtCrisis]}
	registry = application.NewIndexRegistry(only, store)
	_, err = registry.Get(context.Background(), bookdomain.BookCapitalism)
	assert.ErrorIs(t, err, bookdomain.ErrInvalidBook)
}

func TestIndexRegistry_InvalidateReloads(t *testing.T) {
	first := buildIndex(t, bookdomain.BookDebtCrisis, "first version")
	second := buildIndex(t, bookdomain.BookDebtCrisis, "second version")
	current := first
	store := &testutil.MockIndexStore{
		LoadFunc: func(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error) {
			return current, nil
		},
	}
	registry := application.NewIndexRegistry(bookdomain.DefaultCatalog(), store)

	got, err := registry.Get(context.Background(), bookdomain.BookDebtCrisis)
	require.NoError(t, err)
	assert.Same(t, first, got)

	current = second
	got, err = registry.Get(context.Background(), bookdomain.BookDebtCrisis)
	require.NoError(t, err)
	assert.Same(t, first, got, "memoized until invalidated")

	registry.Invalidate(bookdomain.BookDebtCrisis)
	assert.Empty(t, registry.Loaded())

	got, err = registry.Get(context.Background(), bookdomain.BookDebtCrisis)
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, 2, store.Loads())
}

func TestIndexRegistry_InvalidateDuringLoadDropsStaleResult(t *testing.T) {
	stale := buildIndex(t, bookdomain.BookDebtCrisis, "stale")
	fresh := buildIndex(t, bookdomain.BookDebtCrisis, "fresh")

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	calls := 0
	var mu sync.Mutex
	store := &testutil.MockIndexStore{
		LoadFunc: func(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 1 {
				once.Do(func() { close(started) })
				<-release
				return stale, nil
			}
			return fresh, nil
		},
	}
	registry := application.NewIndexRegistry(bookdomain.DefaultCatalog(), store)

	done := make(chan *bookdomain.BookIndex)
	go func() {
		idx, _ := registry.Get(context.Background(), bookdomain.BookDebtCrisis)
		done <- idx
	}()

	<-started
	registry.Invalidate(bookdomain.BookDebtCrisis)
	close(release)

	assert.Same(t, stale, <-done)
	assert.Empty(t, registry.Loaded())

	got, err := registry.Get(context.Background(), bookdomain.BookDebtCrisis)
	require.NoError(t, err)
	assert.Same(t, fresh, got)
}

func TestIndexRegistry_CallerCancellationDoesNotAbortLoad(t *testing.T) {
	idx := buildIndex(t, bookdomain.BookDebtCrisis, "debt")
	release := make(chan struct{})
	store := &testutil.MockIndexStore{
		LoadFunc: func(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error) {
			<-release
			return idx, ctx.Err()
		},
	}
	registry := application.NewIndexRegistry(bookdomain.DefaultCatalog(), store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := registry.Get(ctx, bookdomain.BookDebtCrisis)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	got, err := registry.Get(context.Background(), bookdomain.BookDebtCrisis)
	require.NoError(t, err)
	assert.Same(t, idx, got)
	assert.Equal(t, 1, store.Loads())
}

func TestIndexRegistry_PreloadAndClose(t *testing.T) {
	idx := buildIndex(t, bookdomain.BookCapitalism, "markets")
	store := &testutil.MockIndexStore{
		LoadFunc: func(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error) {
			if book.ID == bookdomain.BookCapitalism {
				return idx, nil
			}
			return nil, bookdomain.ErrIndexNotLoaded
		},
	}
	registry := application.NewIndexRegistry(bookdomain.DefaultCatalog(), store)

	loaded := registry.Preload(context.Background())
	assert.Equal(t, []bookdomain.BookID{bookdomain.BookCapitalism}, loaded)
	assert.Equal(t, loaded, registry.Loaded())

	registry.Close()
	assert.Empty(t, registry.Loaded())
	_, err := registry.Get(context.Background(), bookdomain.BookCapitalism)
	assert.ErrorIs(t, err, bookdomain.ErrIndexNotLoaded)
}
