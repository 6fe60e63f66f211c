package domain

import (
	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// TokenSpan はテキスト中の1トークンのバイト範囲 [Start, End)
type TokenSpan struct {
	Start int
	End   int
}

// Tokenizer はテキストをトークンのバイト範囲列に分解するインターフェース
// 返す範囲は昇順で互いに重ならず、連結すると元テキストを覆うこと
type Tokenizer interface {
	Tokenize(text string) ([]TokenSpan, error)
	Name() string
}

// Chunker は抽出済み unit を Embedding 用チャンクに分割するインターフェース
type Chunker interface {
	Chunk(bookID bookdomain.BookID, units []bookdomain.ExtractedUnit) ([]bookdomain.Chunk, error)
}
