package domain

import (
	"context"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// IndexStore は書籍インデックスの永続化を担うインターフェース
type IndexStore interface {
	// Save はインデックスを新しいバージョンとして書き出し、原子的に差し替える
	Save(ctx context.Context, book bookdomain.Book, index *bookdomain.BookIndex) (version string, err error)

	// Load は現在のバージョンを読み込む
	// 存在しない・読めない場合は ErrIndexNotLoaded を返す
	Load(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error)

	// Exists は現在のバージョンが存在するかを返す
	Exists(book bookdomain.Book) bool
}
