package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	llmdomain "github.com/jinford/book-rag/internal/module/llm/domain"
	searchdomain "github.com/jinford/book-rag/internal/module/search/domain"
)

const (
	// DefaultGenerateTimeout は回答生成の上限時間
	DefaultGenerateTimeout = 60 * time.Second
	// DefaultVerifyTimeout は回答確認の上限時間
	DefaultVerifyTimeout = 20 * time.Second
)

// AnswerGenerator はパッセージのみを根拠に回答を生成する
type AnswerGenerator struct {
	client          llmdomain.Client
	model           string
	temperature     float64
	generateTimeout time.Duration
	verifyTimeout   time.Duration
	logger          *slog.Logger
}

// GeneratorOption は AnswerGenerator のオプション
type GeneratorOption func(*AnswerGenerator)

// WithGeneratorModel は呼び出し単位でモデルを指定する（空の場合はクライアントの既定）
func WithGeneratorModel(model string) GeneratorOption {
	return func(g *AnswerGenerator) {
		g.model = model
	}
}

// WithTemperature は生成時の temperature を指定する
func WithTemperature(t float64) GeneratorOption {
	return func(g *AnswerGenerator) {
		g.temperature = t
	}
}

// WithGenerateTimeout は回答生成の上限時間を指定する
func WithGenerateTimeout(d time.Duration) GeneratorOption {
	return func(g *AnswerGenerator) {
		if d > 0 {
			g.generateTimeout = d
		}
	}
}

// WithVerifyTimeout は回答確認の上限時間を指定する
func WithVerifyTimeout(d time.Duration) GeneratorOption {
	return func(g *AnswerGenerator) {
		if d > 0 {
			g.verifyTimeout = d
		}
	}
}

// WithGeneratorLogger はロガーを差し替える
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *AnswerGenerator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewAnswerGenerator は AnswerGenerator を作成します
func NewAnswerGenerator(client llmdomain.Client, opts ...GeneratorOption) *AnswerGenerator {
	g := &AnswerGenerator{
		client:          client,
		generateTimeout: DefaultGenerateTimeout,
		verifyTimeout:   DefaultVerifyTimeout,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate は回答を1回だけ生成する
// 呼び出し元のキャンセルは伝播させず、上限時間でのみ打ち切る
func (g *AnswerGenerator) Generate(ctx context.Context, question string, candidates []searchdomain.Candidate) (string, error) {
	prompt, err := BuildQAPrompt(question, candidates)
	if err != nil {
		return "", fmt.Errorf("%w: %w", bookdomain.ErrGeneration, err)
	}

	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.generateTimeout)
	defer cancel()

	resp, err := g.client.GenerateCompletion(genCtx, llmdomain.CompletionRequest{
		System:      qaSystemPrompt,
		Prompt:      prompt,
		Model:       g.model,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", bookdomain.ErrGeneration, err)
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", fmt.Errorf("%w: %w", bookdomain.ErrGeneration, llmdomain.ErrEmptyResponse)
	}

	g.logger.Debug("回答を生成しました", "model", resp.Model, "tokens", resp.TokensUsed, "passages", len(candidates))
	return answer, nil
}

// Verify は回答がパッセージに裏付けられているかを確認する
// 応答に "yes" が含まれる場合に true
func (g *AnswerGenerator) Verify(ctx context.Context, answer string, candidates []searchdomain.Candidate) (bool, error) {
	prompt, err := BuildVerifyPrompt(answer, candidates)
	if err != nil {
		return false, err
	}

	verifyCtx, cancel := context.WithTimeout(ctx, g.verifyTimeout)
	defer cancel()

	resp, err := g.client.GenerateCompletion(verifyCtx, llmdomain.CompletionRequest{
		System: verifySystemPrompt,
		Prompt: prompt,
		Model:  g.model,
	})
	if err != nil {
		return false, fmt.Errorf("verify answer: %w", err)
	}
	return strings.Contains(strings.ToLower(resp.Content), "yes"), nil
}
