package filestore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// Watcher はインデックスのルートを監視し、書籍リンクの差し替えを通知する
// 別プロセスでの再取り込み後にキャッシュを破棄するために使う
type Watcher struct {
	root     string
	books    map[string]bookdomain.BookID
	onChange func(bookdomain.BookID)
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewWatcher は Watcher を作成します
func NewWatcher(root string, books []bookdomain.Book, onChange func(bookdomain.BookID), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	byDir := make(map[string]bookdomain.BookID, len(books))
	for _, b := range books {
		byDir[b.IndexDir] = b.ID
	}
	return &Watcher{
		root:     root,
		books:    byDir,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start は監視を開始する。監視対象の登録は戻る前に完了している
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(w.root); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}
	w.watcher = fw

	go w.loop(ctx)
	return nil
}

// Done は監視ループ終了時にクローズされる
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Close は監視を停止する
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			bookID, ok := w.books[filepath.Base(event.Name)]
			if !ok {
				continue
			}
			w.logger.Info("index changed on disk", "book_id", bookID.String(), "op", event.Op.String())
			w.onChange(bookID)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("index watcher error", "error", err)
		}
	}
}
