package domain

import (
	"context"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// Lock は取得済みの書籍ロックを表すインターフェース
type Lock interface {
	// Release はロックを解放します
	Release(ctx context.Context) error
}

// LockManager は書籍単位の取り込みロックを管理するインターフェース
type LockManager interface {
	// TryAcquire はロックの取得を試みます
	// 既に他の取り込みが保持している場合は待たずに ErrIngestionInProgress を返す
	TryAcquire(ctx context.Context, book bookdomain.Book) (Lock, error)
}
