package domain

import (
	"context"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// ExtractOptions は抽出時の書籍ごとの規則
type ExtractOptions struct {
	// StripFootnotes が true の場合は <sup> 要素を除去する
	StripFootnotes bool
	// TokensPerPage はページ推定に用いる1ページあたりのトークン数（0で既定値）
	TokensPerPage int
}

// Extractor は電子書籍コンテナから ExtractedUnit 列を取り出すインターフェース
type Extractor interface {
	// Extract は走査順に unit を返す。空テキストの文書は含まない
	// コンテナを開けない・解析できない場合は ErrContainerParse を返す
	Extract(ctx context.Context, path string, opts ExtractOptions) ([]bookdomain.ExtractedUnit, error)
}
