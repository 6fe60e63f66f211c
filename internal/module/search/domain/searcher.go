package domain

import (
	"context"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// Candidate は検索結果の1件（リクエストごとに生成され永続化しない）
type Candidate struct {
	Text     string
	Metadata bookdomain.ChunkMetadata

	// Score は統合後のスコア（RRF）
	Score float64
	// Rank は最終順位（1始まり）
	Rank int

	// SemanticScore はコサイン類似度
	SemanticScore float64
	// LexicalScore は BM25 スコア（語彙検索でヒットしなかった場合は0）
	LexicalScore float64
}

// Reranker は統合済み候補の並べ替え段
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error)
	Name() string
}

// IndexLoader は書籍インデックスの読み込み元
type IndexLoader interface {
	Load(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error)
}

// Retriever は書籍を指定して候補パッセージを返す
type Retriever interface {
	Retrieve(ctx context.Context, query string, bookID bookdomain.BookID) ([]Candidate, error)
}
