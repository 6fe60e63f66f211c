package application_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/indexing/application"
	llmtesting "github.com/jinford/book-rag/internal/module/llm/testing"
)

func makeChunks(n int) []bookdomain.Chunk {
	chunks := make([]bookdomain.Chunk, n)
	for i := range chunks {
		chunks[i] = bookdomain.Chunk{
			Text:    fmt.Sprintf("passage number %d about topic%d", i, i%7),
			ChunkID: uuid.New(),
			BookID:  bookdomain.BookDebtCrisis,
		}
	}
	return chunks
}

func TestIndexBuilder_BatchesAndKeepsOrder(t *testing.T) {
	embedder := &llmtesting.HashEmbedder{}
	builder := application.NewIndexBuilder(embedder, application.WithBatchSize(100), application.WithConcurrency(3))

	chunks := makeChunks(250)
	index, err := builder.Build(context.Background(), bookdomain.BookDebtCrisis, chunks)
	require.NoError(t, err)
	require.NoError(t, index.Validate())

	assert.Equal(t, 3, embedder.Calls())
	assert.Equal(t, 250, index.Count())
	assert.Equal(t, "hash-embedder", index.EmbeddingModel)

	// 位置 i のテキスト・メタデータ・ベクトルは chunks[i] のもの
	for _, i := range []int{0, 99, 100, 249} {
		assert.Equal(t, chunks[i].Text, index.Texts[i])
		assert.Equal(t, chunks[i].ChunkID.String(), index.Metadata[i].ChunkID)

		hits, err := index.Vectors.Search(llmtesting.HashVector(chunks[i].Text, llmtesting.DefaultHashDimension), 0)
		require.NoError(t, err)
		found := false
		for _, h := range hits {
			if h.Position == i {
				found = true
				assert.InDelta(t, 1.0, h.Score, 1e-6)
			}
		}
		assert.True(t, found)
	}
}

func TestIndexBuilder_RespectsEmbedderBatchLimit(t *testing.T) {
	embedder := &llmtesting.HashEmbedder{BatchSize: 10}
	builder := application.NewIndexBuilder(embedder, application.WithBatchSize(100))

	_, err := builder.Build(context.Background(), bookdomain.BookDebtCrisis, makeChunks(35))
	require.NoError(t, err)
	assert.Equal(t, 4, embedder.Calls())
}

func TestIndexBuilder_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	embedder := &llmtesting.HashEmbedder{
		BatchEmbedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inFlight.Add(-1)

			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = llmtesting.HashVector(text, 8)
			}
			return out, nil
		},
	}
	builder := application.NewIndexBuilder(embedder, application.WithBatchSize(5), application.WithConcurrency(2))

	_, err := builder.Build(context.Background(), bookdomain.BookDebtCrisis, makeChunks(40))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 8, embedder.Calls())
}

func TestIndexBuilder_FailingBatchAbortsBuild(t *testing.T) {
	var calls atomic.Int32
	embedder := &llmtesting.HashEmbedder{
		BatchEmbedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			if calls.Add(1) == 2 {
				return nil, errors.New("429 too many requests")
			}
			out := make([][]float32, len(texts))
			for i, text := range texts {
				out[i] = llmtesting.HashVector(text, 8)
			}
			return out, nil
		},
	}
	builder := application.NewIndexBuilder(embedder, application.WithBatchSize(10), application.WithConcurrency(1))

	index, err := builder.Build(context.Background(), bookdomain.BookDebtCrisis, makeChunks(30))
	assert.Nil(t, index)
	assert.ErrorIs(t, err, bookdomain.ErrEmbeddingService)
}

func TestIndexBuilder_VectorCountMismatch(t *testing.T) {
	embedder := &llmtesting.HashEmbedder{
		BatchEmbedFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
	}
	builder := application.NewIndexBuilder(embedder)

	_, err := builder.Build(context.Background(), bookdomain.BookDebtCrisis, makeChunks(3))
	assert.ErrorIs(t, err, bookdomain.ErrEmbeddingService)
}

func TestIndexBuilder_NoChunks(t *testing.T) {
	builder := application.NewIndexBuilder(&llmtesting.HashEmbedder{})

	_, err := builder.Build(context.Background(), bookdomain.BookDebtCrisis, nil)
	assert.ErrorIs(t, err, bookdomain.ErrChunking)
}

func TestIndexBuilder_RateLimit(t *testing.T) {
	embedder := &llmtesting.HashEmbedder{}
	builder := application.NewIndexBuilder(embedder,
		application.WithBatchSize(1),
		application.WithConcurrency(4),
		application.WithRateLimit(50),
	)

	started := time.Now()
	_, err := builder.Build(context.Background(), bookdomain.BookDebtCrisis, makeChunks(6))
	require.NoError(t, err)
	// バースト1・50rps なので 6 リクエストには少なくとも 100ms かかる
	assert.GreaterOrEqual(t, time.Since(started), 90*time.Millisecond)
}
