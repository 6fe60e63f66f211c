package testing

import (
	"context"
	"sync"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/indexing/domain"
)

// MockExtractor はテスト用のモックExtractorです
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, path string, opts domain.ExtractOptions) ([]bookdomain.ExtractedUnit, error)
}

// Extract はExtractのモック実装です
func (m *MockExtractor) Extract(ctx context.Context, path string, opts domain.ExtractOptions) ([]bookdomain.ExtractedUnit, error) {
	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, path, opts)
	}
	return nil, nil
}

// MockIndexStore はメモリ上に保存するモックIndexStoreです
type MockIndexStore struct {
	SaveFunc func(ctx context.Context, book bookdomain.Book, index *bookdomain.BookIndex) (string, error)
	LoadFunc func(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error)

	mu    sync.Mutex
	saved map[bookdomain.BookID]*bookdomain.BookIndex
	loads int
}

// Save はSaveのモック実装です
func (m *MockIndexStore) Save(ctx context.Context, book bookdomain.Book, index *bookdomain.BookIndex) (string, error) {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, book, index)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[bookdomain.BookID]*bookdomain.BookIndex)
	}
	index.Version = "mock-" + book.IndexDir
	m.saved[book.ID] = index
	return index.Version, nil
}

// Load はLoadのモック実装です（呼び出し回数を記録します）
func (m *MockIndexStore) Load(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error) {
	m.mu.Lock()
	m.loads++
	m.mu.Unlock()

	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, book)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx, ok := m.saved[book.ID]; ok {
		return idx, nil
	}
	return nil, bookdomain.ErrIndexNotLoaded
}

// Exists はExistsのモック実装です
func (m *MockIndexStore) Exists(book bookdomain.Book) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.saved[book.ID]
	return ok
}

// Loads はLoadの呼び出し回数を返します
func (m *MockIndexStore) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

var (
	_ domain.Extractor  = (*MockExtractor)(nil)
	_ domain.IndexStore = (*MockIndexStore)(nil)
)
