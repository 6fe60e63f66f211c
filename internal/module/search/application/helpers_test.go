package application_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	llmtesting "github.com/jinford/book-rag/internal/module/llm/testing"
)

func buildIndex(t *testing.T, bookID bookdomain.BookID, texts ...string) *bookdomain.BookIndex {
	t.Helper()
	chunks := make([]bookdomain.Chunk, len(texts))
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		chunks[i] = bookdomain.Chunk{
			Text:               text,
			ChunkID:            uuid.New(),
			ChapterID:          "text/ch1.xhtml",
			SourcePageEstimate: i + 1,
			BookID:             bookID,
		}
		vectors[i] = llmtesting.HashVector(text, llmtesting.DefaultHashDimension)
	}
	idx, err := bookdomain.NewBookIndex(bookID, chunks, vectors)
	require.NoError(t, err)
	idx.EmbeddingModel = "hash-embedder"
	idx.Version = bookID.String() + "-v1"
	return idx
}
