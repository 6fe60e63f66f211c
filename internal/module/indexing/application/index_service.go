package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/indexing/domain"
)

// IndexParams は1冊分の取り込みパラメータ
type IndexParams struct {
	Book bookdomain.Book

	// EPUBPath が空の場合はカタログの既定パスを使う
	EPUBPath string

	// PDFPath はページ較正用の原本パス（解析はしない）
	PDFPath string

	// Pages は原本の総ページ数。0より大きい場合に1ページあたりのトークン数を較正する
	Pages int
}

// IndexResult は取り込みの結果
type IndexResult struct {
	BookID        bookdomain.BookID
	Version       string
	Units         int
	Chunks        int
	TokensPerPage int
	Metrics       *IndexMetrics
	Duration      time.Duration
}

// IndexService は書籍の取り込み（抽出 → 分割 → 埋め込み → 保存）を提供します
type IndexService struct {
	extractor domain.Extractor
	chunker   domain.Chunker
	builder   *IndexBuilder
	store     domain.IndexStore
	locks     domain.LockManager
	log       *slog.Logger
}

// NewIndexService は新しいIndexServiceを作成します
func NewIndexService(
	extractor domain.Extractor,
	chunker domain.Chunker,
	builder *IndexBuilder,
	store domain.IndexStore,
	locks domain.LockManager,
	log *slog.Logger,
) *IndexService {
	if log == nil {
		log = slog.Default()
	}
	return &IndexService{
		extractor: extractor,
		chunker:   chunker,
		builder:   builder,
		store:     store,
		locks:     locks,
		log:       log,
	}
}

// IndexBook は1冊を取り込み、成功した場合のみ既存のインデックスを置き換えます
func (s *IndexService) IndexBook(ctx context.Context, params IndexParams) (*IndexResult, error) {
	book := params.Book
	if !book.ID.Valid() {
		return nil, fmt.Errorf("%w: %s", bookdomain.ErrInvalidBook, book.ID)
	}

	epubPath := params.EPUBPath
	if epubPath == "" {
		epubPath = book.EPUBPath
	}

	s.log.Info("Starting ingestion",
		"book_id", book.ID.String(),
		"epub", epubPath,
		"pdf", params.PDFPath,
		"pages", params.Pages,
	)
	started := time.Now()

	lock, err := s.locks.TryAcquire(ctx, book)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release ingestion lock", "book_id", book.ID.String(), "error", err)
		}
	}()

	result, err := s.indexBook(ctx, book, epubPath, params)
	if err != nil {
		s.log.Error("Ingestion failed",
			"book_id", book.ID.String(),
			"error", err,
		)
		return nil, err
	}
	result.Duration = time.Since(started)

	lengths := result.Metrics.ChunkLengths()
	s.log.Info("Ingestion completed",
		"book_id", book.ID.String(),
		"version", result.Version,
		"units", result.Units,
		"units_with_part", result.Metrics.UnitsWithPart,
		"chunks", result.Chunks,
		"chunks_with_images", result.Metrics.ChunksWithImages,
		"tokens_per_page", result.TokensPerPage,
		"last_page", result.Metrics.LastPage,
		"chunk_runes_p50", lengths.P50,
		"chunk_runes_p95", lengths.P95,
		"duration", result.Duration,
	)

	return result, nil
}

func (s *IndexService) indexBook(ctx context.Context, book bookdomain.Book, epubPath string, params IndexParams) (*IndexResult, error) {
	metrics := NewIndexMetrics()

	units, err := s.extractor.Extract(ctx, epubPath, domain.ExtractOptions{
		StripFootnotes: book.StripFootnotes,
		TokensPerPage:  bookdomain.DefaultTokensPerPage,
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordUnits(units)

	tokensPerPage := bookdomain.DefaultTokensPerPage
	if params.PDFPath != "" {
		if _, err := os.Stat(params.PDFPath); err != nil {
			s.log.Warn("calibration source not found", "pdf", params.PDFPath, "error", err)
		}
	}
	if params.Pages > 0 {
		tokensPerPage = bookdomain.CalibrateTokensPerPage(bookdomain.TotalApproxTokens(units), params.Pages)
		bookdomain.AssignPageEstimates(units, tokensPerPage)
	} else if params.PDFPath != "" {
		s.log.Info("page count not given, using default page estimate", "tokens_per_page", tokensPerPage)
	}

	chunks, err := s.chunker.Chunk(book.ID, units)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s produced no chunks", bookdomain.ErrChunking, epubPath)
	}
	metrics.RecordChunks(chunks)

	index, err := s.builder.Build(ctx, book.ID, chunks)
	if err != nil {
		return nil, err
	}

	version, err := s.store.Save(ctx, book, index)
	if err != nil {
		return nil, fmt.Errorf("failed to save index: %w", err)
	}

	return &IndexResult{
		BookID:        book.ID,
		Version:       version,
		Units:         len(units),
		Chunks:        len(chunks),
		TokensPerPage: tokensPerPage,
		Metrics:       metrics,
	}, nil
}

// IndexBooks は複数の書籍を並行して取り込みます
// 書籍ごとの結果を返し、失敗した書籍のエラーはまとめて返す
func (s *IndexService) IndexBooks(ctx context.Context, params []IndexParams) ([]*IndexResult, error) {
	results := make([]*IndexResult, len(params))
	errs := make([]error, len(params))

	var g errgroup.Group
	for i, p := range params {
		g.Go(func() error {
			results[i], errs[i] = s.IndexBook(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
