package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/search/domain"
)

// IndexRegistry はプロセス内で書籍インデックスを1度だけ読み込んで保持する
// 読み込みに失敗した場合は記録せず、次の呼び出しで再試行する
type IndexRegistry struct {
	catalog bookdomain.Catalog
	loader  domain.IndexLoader
	logger  *slog.Logger

	mu          sync.RWMutex
	indexes     map[bookdomain.BookID]*bookdomain.BookIndex
	generations map[bookdomain.BookID]uint64
	closed      bool

	group singleflight.Group
}

// RegistryOption は IndexRegistry のオプション
type RegistryOption func(*IndexRegistry)

// WithRegistryLogger はロガーを差し替える
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *IndexRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewIndexRegistry は空の IndexRegistry を作成します
func NewIndexRegistry(catalog bookdomain.Catalog, loader domain.IndexLoader, opts ...RegistryOption) *IndexRegistry {
	r := &IndexRegistry{
		catalog:     catalog,
		loader:      loader,
		logger:      slog.Default(),
		indexes:     make(map[bookdomain.BookID]*bookdomain.BookIndex),
		generations: make(map[bookdomain.BookID]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var errRegistryClosed = errors.New("index registry closed")

// Get は書籍のインデックスを返す。未読み込みの場合は読み込む
// 同一書籍への同時呼び出しでも読み込みは1回だけ行われる
func (r *IndexRegistry) Get(ctx context.Context, bookID bookdomain.BookID) (*bookdomain.BookIndex, error) {
	book, err := r.catalog.Lookup(bookID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: %v", bookdomain.ErrIndexNotLoaded, errRegistryClosed)
	}
	if idx, ok := r.indexes[bookID]; ok {
		r.mu.RUnlock()
		return idx, nil
	}
	gen := r.generations[bookID]
	r.mu.RUnlock()

	key := fmt.Sprintf("%s#%d", bookID, gen)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.load(context.WithoutCancel(ctx), book, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*bookdomain.BookIndex), nil
	}
}

func (r *IndexRegistry) load(ctx context.Context, book bookdomain.Book, gen uint64) (*bookdomain.BookIndex, error) {
	r.mu.RLock()
	if idx, ok := r.indexes[book.ID]; ok {
		r.mu.RUnlock()
		return idx, nil
	}
	r.mu.RUnlock()

	idx, err := r.loader.Load(ctx, book)
	if err != nil {
		r.logger.Warn("インデックスの読み込みに失敗", "book", book.ID, "error", err)
		if errors.Is(err, bookdomain.ErrIndexNotLoaded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", bookdomain.ErrIndexNotLoaded, book.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// 読み込み中に Invalidate された場合は保持しない
	if !r.closed && r.generations[book.ID] == gen {
		r.indexes[book.ID] = idx
	}
	r.logger.Info("インデックスを読み込みました", "book", book.ID, "version", idx.Version, "chunks", idx.Count())
	return idx, nil
}

// Preload は指定書籍のインデックスを読み込む
// 読み込めなかった書籍はログに記録してスキップし、読み込めた書籍を返す
func (r *IndexRegistry) Preload(ctx context.Context, bookIDs ...bookdomain.BookID) []bookdomain.BookID {
	if len(bookIDs) == 0 {
		bookIDs = bookdomain.AllBooks()
	}
	loaded := make([]bookdomain.BookID, 0, len(bookIDs))
	for _, id := range bookIDs {
		if _, err := r.Get(ctx, id); err != nil {
			r.logger.Warn("インデックスを事前読み込みできませんでした", "book", id, "error", err)
			continue
		}
		loaded = append(loaded, id)
	}
	return loaded
}

// Loaded は読み込み済みの書籍を AllBooks の順で返す
func (r *IndexRegistry) Loaded() []bookdomain.BookID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]bookdomain.BookID, 0, len(r.indexes))
	for _, id := range bookdomain.AllBooks() {
		if _, ok := r.indexes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Invalidate は書籍のインデックスを破棄し、次の Get で再読み込みさせる
func (r *IndexRegistry) Invalidate(bookID bookdomain.BookID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.indexes, bookID)
	r.generations[bookID]++
	r.logger.Info("インデックスを破棄しました", "book", bookID)
}

// Close は保持しているインデックスを解放する。以降の Get は失敗する
func (r *IndexRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	clear(r.indexes)
}
