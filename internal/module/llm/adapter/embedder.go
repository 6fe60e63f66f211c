package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/jinford/book-rag/internal/module/llm/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"

	// MaxEmbeddingBatchSize は OpenAI Embeddings API の1リクエストあたりの上限件数
	MaxEmbeddingBatchSize = 100

	// DefaultEmbeddingRetries は一時的エラー時の既定リトライ回数
	DefaultEmbeddingRetries = 3
)

// OpenAIEmbedder はOpenAI APIを使用したEmbedder実装
type OpenAIEmbedder struct {
	client      openai.Client
	model       string
	dimension   int
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
}

// NewOpenAIEmbedder は新しいOpenAIEmbedderを作成します
// dimension が0の場合はモデル既定の次元数を使用します
func NewOpenAIEmbedder(apiKey, model string, dimension int, opts ...ClientOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, domain.ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	o := clientOptions{
		timeout:     DefaultTimeout,
		maxRetries:  DefaultEmbeddingRetries,
		baseBackoff: BaseBackoff,
	}
	for _, opt := range opts {
		opt(&o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}

	return &OpenAIEmbedder{
		client:      openai.NewClient(reqOpts...),
		model:       model,
		dimension:   dimension,
		timeout:     o.timeout,
		maxRetries:  o.maxRetries,
		baseBackoff: o.baseBackoff,
	}, nil
}

// Embed はテキストからEmbeddingベクトルを生成する
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings generated")
	}

	return embeddings[0], nil
}

// BatchEmbed はバッチでEmbeddingを生成します（最大100件）
// 429 / 5xx は Exponential Backoff でリトライします
func (e *OpenAIEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	if len(texts) > MaxEmbeddingBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum of %d", len(texts), MaxEmbeddingBatchSize)
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}

	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(texts[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		}
	}

	// dimensionパラメータ（text-embedding-3 系で有効）
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, backoffDuration(e.baseBackoff, attempt)); err != nil {
				return nil, err
			}
		}

		embeddings, err := e.call(ctx, params, len(texts))
		if err == nil {
			return embeddings, nil
		}
		lastErr = err
		if !isTransientError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, lastErr)
}

func (e *OpenAIEmbedder) call(ctx context.Context, params openai.EmbeddingNewParams, want int) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(resp.Data) != want {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), want)
	}

	// レスポンスは index 順に並べ直す
	embeddings := make([][]float32, want)
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= want {
			return nil, fmt.Errorf("embedding index %d out of range", idx)
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings[idx] = vector
	}

	return embeddings, nil
}

// ModelName はモデル名を返す
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す（0はモデル既定）
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// MaxBatchSize はバッチ処理の最大サイズを返す
func (e *OpenAIEmbedder) MaxBatchSize() int {
	return MaxEmbeddingBatchSize
}

// インターフェース実装の確認
var _ domain.Embedder = (*OpenAIEmbedder)(nil)
