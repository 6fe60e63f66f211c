package domain

import "context"

// CompletionRequest はテキスト生成リクエスト
type CompletionRequest struct {
	// System はシステム指示（空の場合は送信しない）
	System string
	// Prompt はユーザーメッセージ
	Prompt string
	// Model は呼び出し単位でモデルを上書きする場合に指定
	Model       string
	Temperature float64
}

// CompletionResponse はテキスト生成結果
type CompletionResponse struct {
	Content    string
	TokensUsed int
	Model      string
}

// Client はテキスト生成モデルのクライアント
type Client interface {
	GenerateCompletion(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
