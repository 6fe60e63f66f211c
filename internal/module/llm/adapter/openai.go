package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/jinford/book-rag/internal/module/llm/domain"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	// DefaultModel はデフォルトで使用する生成モデル
	DefaultModel = "gpt-4o-mini"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second
)

// ClientOption は OpenAIClient のオプション設定
type ClientOption func(*clientOptions)

type clientOptions struct {
	baseURL     string
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
}

// WithBaseURL は OpenAI 互換エンドポイントのベースURLを指定する
func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithTimeout はAPIコールのタイムアウトを指定する
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithMaxRetries はレート制限エラー時の最大リトライ回数を指定する（0で単発呼び出し）
func WithMaxRetries(n int) ClientOption {
	return func(o *clientOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithBaseBackoff はリトライ間隔の基底時間を指定する
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.baseBackoff = d
	}
}

// OpenAIClient はOpenAI Chat Completions APIを使用したLLMクライアント実装
type OpenAIClient struct {
	client      openai.Client
	model       string
	timeout     time.Duration
	maxRetries  int
	baseBackoff time.Duration
}

// NewOpenAIClient はAPIキーとモデルを指定してOpenAIClientを作成する
func NewOpenAIClient(apiKey, model string, opts ...ClientOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, domain.ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}

	o := clientOptions{
		timeout:     DefaultTimeout,
		baseBackoff: BaseBackoff,
	}
	for _, opt := range opts {
		opt(&o)
	}

	// SDK 内蔵のリトライは無効化し、リトライ方針はこのクライアントで管理する
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}

	return &OpenAIClient{
		client:      openai.NewClient(reqOpts...),
		model:       model,
		timeout:     o.timeout,
		maxRetries:  o.maxRetries,
		baseBackoff: o.baseBackoff,
	}, nil
}

// GetModelName はモデル名を返す
func (c *OpenAIClient) GetModelName() string {
	return c.model
}

// GenerateCompletion はOpenAI APIを使用してテキストを生成する
func (c *OpenAIClient) GenerateCompletion(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	return c.generateWithRetry(ctx, model, req)
}

// generateWithRetry はレート制限エラー時にExponential Backoffでリトライする
func (c *OpenAIClient) generateWithRetry(ctx context.Context, model string, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, backoffDuration(c.baseBackoff, attempt)); err != nil {
				return domain.CompletionResponse{}, err
			}
		}

		messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
		if req.System != "" {
			messages = append(messages, openai.SystemMessage(req.System))
		}
		messages = append(messages, openai.UserMessage(req.Prompt))

		params := openai.ChatCompletionNewParams{
			Model:       shared.ChatModel(model),
			Messages:    messages,
			Temperature: openai.Float(req.Temperature),
		}

		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRateLimitError(err) {
				continue
			}
			return domain.CompletionResponse{}, fmt.Errorf("OpenAI API call failed: %w", err)
		}

		if len(completion.Choices) == 0 {
			return domain.CompletionResponse{}, fmt.Errorf("no completion choices returned: %w", domain.ErrEmptyResponse)
		}

		return domain.CompletionResponse{
			Content:    completion.Choices[0].Message.Content,
			TokensUsed: int(completion.Usage.TotalTokens),
			Model:      string(completion.Model),
		}, nil
	}

	if isRateLimitError(lastErr) {
		return domain.CompletionResponse{}, fmt.Errorf("%w: %w: %v", domain.ErrMaxRetriesExceeded, domain.ErrRateLimitExceeded, lastErr)
	}
	return domain.CompletionResponse{}, fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, lastErr)
}

// インターフェース実装の確認
var _ domain.Client = (*OpenAIClient)(nil)
