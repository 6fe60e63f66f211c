package testing

import (
	"context"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/search/domain"
)

// MockRetriever はテスト用のモックRetrieverです
type MockRetriever struct {
	RetrieveFunc func(ctx context.Context, query string, bookID bookdomain.BookID) ([]domain.Candidate, error)
}

// Retrieve はRetrieveのモック実装です
func (m *MockRetriever) Retrieve(ctx context.Context, query string, bookID bookdomain.BookID) ([]domain.Candidate, error) {
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, query, bookID)
	}
	return nil, nil
}

// Candidates は順位付きの候補を作成します
func Candidates(bookID bookdomain.BookID, texts ...string) []domain.Candidate {
	out := make([]domain.Candidate, len(texts))
	for i, text := range texts {
		out[i] = domain.Candidate{
			Text: text,
			Metadata: bookdomain.ChunkMetadata{
				Chapter:   "text/ch1.xhtml",
				PDFPage:   i + 1,
				ImageRefs: []string{},
				BookID:    bookID,
			},
			Rank: i + 1,
		}
	}
	return out
}

var _ domain.Retriever = (*MockRetriever)(nil)
