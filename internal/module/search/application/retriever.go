package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	llmdomain "github.com/jinford/book-rag/internal/module/llm/domain"
	"github.com/jinford/book-rag/internal/module/search/adapter/lexical"
	"github.com/jinford/book-rag/internal/module/search/adapter/rerank"
	"github.com/jinford/book-rag/internal/module/search/domain"
	"github.com/jinford/book-rag/pkg/vectorindex"
)

const (
	// DefaultSemanticK は意味検索で取得する件数
	DefaultSemanticK = 10
	// DefaultLexicalK は語彙検索で採用する件数
	DefaultLexicalK = 4
	// MaxFinalPassages は返却する最大件数
	MaxFinalPassages = 5
	// RRFConstant は reciprocal rank fusion の定数
	RRFConstant = 60
)

// HybridRetriever は意味検索と BM25 を組み合わせた Retriever
type HybridRetriever struct {
	registry *IndexRegistry
	embedder llmdomain.Embedder
	reranker domain.Reranker
	logger   *slog.Logger

	semanticK int
	lexicalK  int
	finalK    int
}

// RetrieverOption は HybridRetriever のオプション
type RetrieverOption func(*HybridRetriever)

// WithReranker は Reranker を差し替える
func WithReranker(reranker domain.Reranker) RetrieverOption {
	return func(h *HybridRetriever) {
		if reranker != nil {
			h.reranker = reranker
		}
	}
}

// WithRetrieverLogger はロガーを差し替える
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(h *HybridRetriever) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHybridRetriever は HybridRetriever を作成します
func NewHybridRetriever(registry *IndexRegistry, embedder llmdomain.Embedder, opts ...RetrieverOption) *HybridRetriever {
	h := &HybridRetriever{
		registry:  registry,
		embedder:  embedder,
		reranker:  rerank.Identity{},
		logger:    slog.Default(),
		semanticK: DefaultSemanticK,
		lexicalK:  DefaultLexicalK,
		finalK:    MaxFinalPassages,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Retrieve は書籍から質問に関連するパッセージを最大 MaxFinalPassages 件返す
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, bookID bookdomain.BookID) ([]domain.Candidate, error) {
	if !bookID.Valid() {
		return nil, fmt.Errorf("%w: %s", bookdomain.ErrInvalidBook, bookID)
	}

	idx, err := h.registry.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}

	vec, err := h.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query embedding: %v", bookdomain.ErrEmbeddingService, err)
	}

	hits, err := idx.Vectors.Search(vec, h.semanticK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bookdomain.ErrEmbeddingService, err)
	}
	if len(hits) == 0 {
		return []domain.Candidate{}, nil
	}

	// 語彙検索は意味検索の上位 K 件のみを対象にする
	pool := make([]string, len(hits))
	for i, hit := range hits {
		pool[i] = idx.Texts[hit.Position]
	}
	lexHits := lexical.New(pool).Top(query, h.lexicalK)

	merged := fuse(idx, hits, lexHits)

	reranked, err := h.reranker.Rerank(ctx, query, merged)
	if err != nil {
		h.logger.Warn("リランクに失敗したため統合順位を使用します", "reranker", h.reranker.Name(), "error", err)
		reranked = merged
	}

	if len(reranked) > h.finalK {
		reranked = reranked[:h.finalK]
	}
	for i := range reranked {
		reranked[i].Rank = i + 1
	}

	h.logger.Debug("検索完了",
		"book", bookID,
		"semantic", len(hits),
		"lexical", len(lexHits),
		"results", len(reranked),
	)
	return reranked, nil
}

type fused struct {
	candidate    domain.Candidate
	semanticRank int
}

// fuse は意味検索と語彙検索の順位を RRF で統合し、同一テキストを除去する
func fuse(idx *bookdomain.BookIndex, semantic []vectorindex.Hit, lexHits []lexical.Hit) []domain.Candidate {
	byPool := make(map[int]*fused, len(semantic))
	order := make([]*fused, 0, len(semantic))

	for rank, hit := range semantic {
		f := &fused{
			candidate: domain.Candidate{
				Text:          idx.Texts[hit.Position],
				Metadata:      idx.Metadata[hit.Position],
				SemanticScore: hit.Score,
				Score:         1.0 / float64(RRFConstant+rank+1),
			},
			semanticRank: rank,
		}
		byPool[rank] = f
		order = append(order, f)
	}
	for rank, hit := range lexHits {
		f := byPool[hit.Index]
		f.candidate.LexicalScore = hit.Score
		f.candidate.Score += 1.0 / float64(RRFConstant+rank+1)
	}

	sort.SliceStable(order, func(a, b int) bool {
		if order[a].candidate.Score != order[b].candidate.Score {
			return order[a].candidate.Score > order[b].candidate.Score
		}
		return order[a].semanticRank < order[b].semanticRank
	})

	seen := make(map[string]struct{}, len(order))
	out := make([]domain.Candidate, 0, len(order))
	for _, f := range order {
		if _, ok := seen[f.candidate.Text]; ok {
			continue
		}
		seen[f.candidate.Text] = struct{}{}
		out = append(out, f.candidate)
	}
	return out
}

var _ domain.Retriever = (*HybridRetriever)(nil)
