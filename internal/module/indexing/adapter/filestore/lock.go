package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/indexing/domain"
)

// LockManager は書籍単位の取り込みロック
// 同一プロセス内はミューテックス、プロセス間は <root>/.<dir>.lock のファイルロックで排他する
type LockManager struct {
	root string

	mu   sync.Mutex
	held map[bookdomain.BookID]struct{}
}

// NewLockManager は LockManager を作成します
func NewLockManager(root string) *LockManager {
	return &LockManager{
		root: root,
		held: make(map[bookdomain.BookID]struct{}),
	}
}

// TryAcquire は待たずにロックの取得を試みる
func (m *LockManager) TryAcquire(_ context.Context, book bookdomain.Book) (domain.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[book.ID]; ok {
		return nil, fmt.Errorf("%w: %s", bookdomain.ErrIngestionInProgress, book.ID)
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index root: %w", err)
	}
	path := filepath.Join(m.root, "."+book.IndexDir+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := tryLockFile(f); err != nil {
		f.Close()
		if err == errLocked {
			return nil, fmt.Errorf("%w: %s (held by another process)", bookdomain.ErrIngestionInProgress, book.ID)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	m.held[book.ID] = struct{}{}
	return &bookLock{manager: m, bookID: book.ID, file: f}, nil
}

type bookLock struct {
	manager *LockManager
	bookID  bookdomain.BookID
	file    *os.File
	once    sync.Once
}

// Release はロックを解放します（複数回呼んでもよい）
func (l *bookLock) Release(_ context.Context) error {
	var err error
	l.once.Do(func() {
		err = unlockFile(l.file)
		if cerr := l.file.Close(); err == nil {
			err = cerr
		}

		l.manager.mu.Lock()
		delete(l.manager.held, l.bookID)
		l.manager.mu.Unlock()
	})
	return err
}

var _ domain.LockManager = (*LockManager)(nil)
