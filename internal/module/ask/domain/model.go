package domain

import (
	"time"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	Question string            // ユーザーの質問文
	BookID   bookdomain.BookID // 対象書籍
	Verify   bool              // 回答の裏付け確認を行うか
}

// AskResult は質問応答の結果を表す
type AskResult struct {
	Answer         string            // 生成された回答
	Sources        []SourceReference // 回答の根拠パッセージ（順位順）
	ProcessingTime time.Duration

	// Verified は Verify 指定時の確認結果。未実施・確認失敗の場合は nil
	Verified *bool
}

// SourceReference は回答の根拠となったパッセージを表す
type SourceReference struct {
	Content  string
	Metadata bookdomain.ChunkMetadata
	Rank     int
}
