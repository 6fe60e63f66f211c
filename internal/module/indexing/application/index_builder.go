package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	llmdomain "github.com/jinford/book-rag/internal/module/llm/domain"
)

const (
	// DefaultEmbeddingBatchSize は1リクエストあたりのチャンク数
	DefaultEmbeddingBatchSize = 100

	// DefaultEmbeddingConcurrency は同時に送るバッチ数
	DefaultEmbeddingConcurrency = 4
)

// IndexBuilder はチャンクを埋め込み、BookIndex を構築する
type IndexBuilder struct {
	embedder    llmdomain.Embedder
	batchSize   int
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// BuilderOption は IndexBuilder のオプション
type BuilderOption func(*IndexBuilder)

// WithBatchSize はバッチサイズを指定する（Embedder の上限を超える値は切り詰める）
func WithBatchSize(n int) BuilderOption {
	return func(b *IndexBuilder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithConcurrency は同時実行バッチ数を指定する
func WithConcurrency(n int) BuilderOption {
	return func(b *IndexBuilder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithRateLimit は秒間リクエスト数の上限を指定する（0以下で無制限）
func WithRateLimit(rps float64) BuilderOption {
	return func(b *IndexBuilder) {
		if rps > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			b.limiter = rate.NewLimiter(rate.Inf, 0)
		}
	}
}

// WithBuilderLogger はロガーを差し替える
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *IndexBuilder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewIndexBuilder は IndexBuilder を作成します
func NewIndexBuilder(embedder llmdomain.Embedder, opts ...BuilderOption) *IndexBuilder {
	b := &IndexBuilder{
		embedder:    embedder,
		batchSize:   DefaultEmbeddingBatchSize,
		concurrency: DefaultEmbeddingConcurrency,
		limiter:     rate.NewLimiter(rate.Inf, 0),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build は全チャンクを埋め込み、位置の揃った BookIndex を返す
// いずれかのバッチが失敗した場合は全体を ErrEmbeddingService で中断する
func (b *IndexBuilder) Build(ctx context.Context, bookID bookdomain.BookID, chunks []bookdomain.Chunk) (*bookdomain.BookIndex, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks to index", bookdomain.ErrChunking)
	}

	batchSize := b.batchSize
	if limit := b.embedder.MaxBatchSize(); limit > 0 && batchSize > limit {
		batchSize = limit
	}
	batches := (len(chunks) + batchSize - 1) / batchSize

	vectors := make([][]float32, len(chunks))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i := 0; i < batches; i++ {
		start := i * batchSize
		end := min(start+batchSize, len(chunks))

		g.Go(func() error {
			if err := b.limiter.Wait(gctx); err != nil {
				return err
			}

			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Text)
			}

			embeddings, err := b.embedder.BatchEmbed(gctx, texts)
			if err != nil {
				return fmt.Errorf("%w: batch %d/%d: %v", bookdomain.ErrEmbeddingService, i+1, batches, err)
			}
			if len(embeddings) != len(texts) {
				return fmt.Errorf("%w: batch %d/%d returned %d vectors for %d texts",
					bookdomain.ErrEmbeddingService, i+1, batches, len(embeddings), len(texts))
			}
			copy(vectors[start:end], embeddings)

			b.logger.Debug("embedded batch",
				"book_id", bookID.String(),
				"batch", i+1,
				"batches", batches,
				"done", done.Add(1))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil && !errors.Is(err, bookdomain.ErrEmbeddingService) {
			return nil, ctx.Err()
		}
		if !errors.Is(err, bookdomain.ErrEmbeddingService) {
			err = fmt.Errorf("%w: %v", bookdomain.ErrEmbeddingService, err)
		}
		return nil, err
	}

	index, err := bookdomain.NewBookIndex(bookID, chunks, vectors)
	if err != nil {
		return nil, err
	}
	index.EmbeddingModel = b.embedder.ModelName()
	return index, nil
}
