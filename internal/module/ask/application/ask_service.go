package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jinford/book-rag/internal/module/ask/domain"
	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	searchdomain "github.com/jinford/book-rag/internal/module/search/domain"
)

// AskService は検索と回答生成をまとめて質問応答を提供する
type AskService struct {
	retriever searchdomain.Retriever
	generator *AnswerGenerator
	logger    *slog.Logger
	now       func() time.Time
}

type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	retriever searchdomain.Retriever,
	generator *AnswerGenerator,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		retriever: retriever,
		generator: generator,
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Ask は質問に対して書籍のパッセージのみを根拠に回答を生成する
func (s *AskService) Ask(ctx context.Context, params domain.AskParams) (*domain.AskResult, error) {
	start := s.now()

	// 1. バリデーション
	question := strings.TrimSpace(params.Question)
	if question == "" {
		return nil, bookdomain.ErrEmptyQuestion
	}
	if !params.BookID.Valid() {
		return nil, fmt.Errorf("%w: %s", bookdomain.ErrInvalidBook, params.BookID)
	}

	// 2. 検索
	s.logger.Info("retrieving passages", "book", params.BookID, "question", question)
	candidates, err := s.retriever.Retrieve(ctx, question, params.BookID)
	if err != nil {
		return nil, fmt.Errorf("retrieve passages: %w", err)
	}

	// 3. 回答生成
	answer, err := s.generator.Generate(ctx, question, candidates)
	if err != nil {
		return nil, err
	}

	sources := make([]domain.SourceReference, 0, len(candidates))
	for _, c := range candidates {
		sources = append(sources, domain.SourceReference{
			Content:  c.Text,
			Metadata: c.Metadata,
			Rank:     c.Rank,
		})
	}

	result := &domain.AskResult{
		Answer:  answer,
		Sources: sources,
	}

	// 4. 裏付け確認（失敗しても回答は返す）
	if params.Verify {
		ok, err := s.generator.Verify(ctx, answer, candidates)
		if err != nil {
			s.logger.Warn("answer verification failed", "book", params.BookID, "error", err)
		} else {
			result.Verified = &ok
		}
	}

	result.ProcessingTime = s.now().Sub(start)

	s.logger.Info("ask completed successfully",
		"book", params.BookID,
		"answerLength", len(answer),
		"sources", len(sources),
		"duration", result.ProcessingTime,
	)

	return result, nil
}
