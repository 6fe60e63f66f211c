package testing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/jinford/book-rag/internal/module/llm/domain"
)

// DefaultHashDimension は HashEmbedder の既定次元数
const DefaultHashDimension = 64

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashEmbedder は単語ハッシュの出現頻度を正規化したベクトルを返すテスト用Embedder
// 同じ単語を含むテキスト同士のコサイン類似度が高くなる
type HashEmbedder struct {
	Dimension int
	// BatchEmbedFunc が設定されている場合はそちらを優先する
	BatchEmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)
	BatchSize      int

	mu    sync.Mutex
	calls int
}

// Embed は1件のテキストをベクトル化する
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// BatchEmbed は複数テキストをベクトル化する
func (e *HashEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.BatchEmbedFunc != nil {
		return e.BatchEmbedFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = HashVector(text, e.dim())
	}
	return out, nil
}

// Calls は BatchEmbed の呼び出し回数を返す
func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// MaxBatchSize はバッチサイズ上限を返す
func (e *HashEmbedder) MaxBatchSize() int {
	if e.BatchSize > 0 {
		return e.BatchSize
	}
	return 100
}

// ModelName はモデル名を返す
func (e *HashEmbedder) ModelName() string {
	return "hash-embedder"
}

func (e *HashEmbedder) dim() int {
	if e.Dimension > 0 {
		return e.Dimension
	}
	return DefaultHashDimension
}

// HashVector は text を dim 次元の単位ベクトルに変換する
func HashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[h.Sum32()%uint32(dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// FakeClient はテスト用の生成モデルクライアント
type FakeClient struct {
	GenerateCompletionFunc func(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error)

	mu       sync.Mutex
	requests []domain.CompletionRequest
}

// GenerateCompletion はリクエストを記録して GenerateCompletionFunc を呼び出す
func (c *FakeClient) GenerateCompletion(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.GenerateCompletionFunc != nil {
		return c.GenerateCompletionFunc(ctx, req)
	}
	return domain.CompletionResponse{Content: "fake answer"}, nil
}

// Requests は記録済みのリクエストを返す
func (c *FakeClient) Requests() []domain.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CompletionRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

var (
	_ domain.Embedder = (*HashEmbedder)(nil)
	_ domain.Client   = (*FakeClient)(nil)
)
