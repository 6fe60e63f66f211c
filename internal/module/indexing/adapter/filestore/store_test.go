package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

func testBook() bookdomain.Book {
	return bookdomain.DefaultCatalog()[bookdomain.BookDebtCrisis]
}

func testIndex(t *testing.T, texts ...string) *bookdomain.BookIndex {
	t.Helper()
	chunks := make([]bookdomain.Chunk, len(texts))
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = bookdomain.Chunk{
			Text:               text,
			ChunkID:            uuid.New(),
			ChapterID:          "ch.xhtml",
			SourcePageEstimate: i + 1,
			BookID:             bookdomain.BookDebtCrisis,
		}
		vectors[i] = []float32{float32(i + 1), 1}
	}
	idx, err := bookdomain.NewBookIndex(bookdomain.BookDebtCrisis, chunks, vectors)
	require.NoError(t, err)
	idx.EmbeddingModel = "test-model"
	return idx
}

func TestStore_SaveAndLoad(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	book := testBook()

	assert.False(t, store.Exists(book))

	idx := testIndex(t, "first passage", "second passage")
	version, err := store.Save(t.Context(), book, idx)
	require.NoError(t, err)
	assert.Equal(t, version, idx.Version)
	assert.True(t, store.Exists(book))

	info, err := os.Lstat(store.Path(book))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	for _, name := range []string{IndexFile, DocstoreFile, MetadataFile, ManifestFile} {
		assert.FileExists(t, filepath.Join(store.Path(book), name))
	}

	loaded, err := store.Load(t.Context(), book)
	require.NoError(t, err)
	assert.Equal(t, version, loaded.Version)
	assert.Equal(t, bookdomain.BookDebtCrisis, loaded.BookID)
	assert.Equal(t, []string{"first passage", "second passage"}, loaded.Texts)
	assert.Equal(t, idx.Metadata, loaded.Metadata)
	assert.Equal(t, loaded.Vectors.Count(), len(loaded.Metadata))
	assert.Equal(t, "test-model", loaded.EmbeddingModel)
}

func TestStore_MetadataJSONLayout(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	book := testBook()

	_, err := store.Save(t.Context(), book, testIndex(t, "only"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(store.Path(book), MetadataFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chapter":"ch.xhtml"`)
	assert.Contains(t, string(data), `"part":null`)
	assert.Contains(t, string(data), `"pdf_page":1`)
	assert.Contains(t, string(data), `"image_refs":[]`)
	assert.Contains(t, string(data), `"book_id":"debt_crisis"`)
}

func TestStore_ReplaceKeepsOnePreviousVersion(t *testing.T) {
	root := t.TempDir()
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := New(root, WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))
	book := testBook()

	var versions []string
	for i := 0; i < 3; i++ {
		v, err := store.Save(t.Context(), book, testIndex(t, "a", "b"))
		require.NoError(t, err)
		versions = append(versions, v)
	}

	entries, err := os.ReadDir(filepath.Join(root, versionsDir))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, versions[1:], names)

	loaded, err := store.Load(t.Context(), book)
	require.NoError(t, err)
	assert.Equal(t, versions[2], loaded.Version)
}

func TestStore_FailedSaveLeavesPriorIndex(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	book := testBook()

	version, err := store.Save(t.Context(), book, testIndex(t, "kept"))
	require.NoError(t, err)

	broken := testIndex(t, "x", "y")
	broken.Metadata = broken.Metadata[:1]
	_, err = store.Save(t.Context(), book, broken)
	require.Error(t, err)

	loaded, err := store.Load(t.Context(), book)
	require.NoError(t, err)
	assert.Equal(t, version, loaded.Version)
	assert.Equal(t, []string{"kept"}, loaded.Texts)

	entries, err := os.ReadDir(filepath.Join(root, versionsDir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_LoadErrors(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	book := testBook()

	_, err := store.Load(t.Context(), book)
	assert.ErrorIs(t, err, bookdomain.ErrIndexNotLoaded)

	_, err = store.Save(t.Context(), book, testIndex(t, "a"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.Path(book), IndexFile), []byte{1, 2}, 0o644))

	_, err = store.Load(t.Context(), book)
	assert.ErrorIs(t, err, bookdomain.ErrIndexNotLoaded)
}

func TestStore_MigratesLegacyDirectory(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	book := testBook()

	legacy := store.Path(book)
	require.NoError(t, os.MkdirAll(legacy, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacy, "index.faiss"), []byte("old"), 0o644))

	_, err := store.Save(t.Context(), book, testIndex(t, "new"))
	require.NoError(t, err)

	loaded, err := store.Load(t.Context(), book)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, loaded.Texts)

	matches, err := filepath.Glob(filepath.Join(root, versionsDir, book.IndexDir+"-legacy-*", "index.faiss"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestLockManager_SecondAcquireFails(t *testing.T) {
	root := t.TempDir()
	locks := NewLockManager(root)
	book := testBook()

	lock, err := locks.TryAcquire(t.Context(), book)
	require.NoError(t, err)

	_, err = locks.TryAcquire(t.Context(), book)
	assert.ErrorIs(t, err, bookdomain.ErrIngestionInProgress)

	// 別の書籍は独立して取得できる
	other, err := locks.TryAcquire(t.Context(), bookdomain.DefaultCatalog()[bookdomain.BookCapitalism])
	require.NoError(t, err)
	require.NoError(t, other.Release(t.Context()))

	require.NoError(t, lock.Release(t.Context()))
	require.NoError(t, lock.Release(t.Context()))

	again, err := locks.TryAcquire(t.Context(), book)
	require.NoError(t, err)
	require.NoError(t, again.Release(t.Context()))
}

func TestLockManager_ConcurrentAcquire(t *testing.T) {
	locks := NewLockManager(t.TempDir())
	book := testBook()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var acquired, rejected int
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := locks.TryAcquire(t.Context(), book)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				acquired++
			case errors.Is(err, bookdomain.ErrIngestionInProgress):
				rejected++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, acquired)
	assert.Equal(t, 7, rejected)
}

func TestWatcher_NotifiesOnSwap(t *testing.T) {
	root := t.TempDir()
	store := New(root)
	book := testBook()

	var mu sync.Mutex
	var changed []bookdomain.BookID
	w := NewWatcher(root, []bookdomain.Book{book}, func(id bookdomain.BookID) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, id)
	}, nil)
	require.NoError(t, w.Start(t.Context()))
	defer w.Close()

	_, err := store.Save(t.Context(), book, testIndex(t, "watched"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0 && changed[0] == bookdomain.BookDebtCrisis
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Close())
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watcher loop did not stop")
	}
}
