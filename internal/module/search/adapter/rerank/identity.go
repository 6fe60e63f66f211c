// Package rerank は統合済み候補の並べ替え段を提供する。
package rerank

import (
	"context"

	"github.com/jinford/book-rag/internal/module/search/domain"
)

// Identity は入力をそのまま返す Reranker
type Identity struct{}

// Rerank は candidates を変更せずに返す
func (Identity) Rerank(_ context.Context, _ string, candidates []domain.Candidate) ([]domain.Candidate, error) {
	return candidates, nil
}

// Name は Reranker 名を返す
func (Identity) Name() string {
	return "identity"
}

var _ domain.Reranker = Identity{}
