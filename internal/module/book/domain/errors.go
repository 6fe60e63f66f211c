package domain

import "errors"

// パイプライン全体で共有するエラー分類
// 各層は fmt.Errorf("%w: ...") で詳細を付与し、呼び出し側は errors.Is で判定する
var (
	// ErrContainerParse は EPUB コンテナを開けない・解析できない場合のエラー
	ErrContainerParse = errors.New("container parse error")

	// ErrChunking はトークナイザ・分割処理の失敗
	ErrChunking = errors.New("chunking error")

	// ErrEmbeddingService は Embedding API の失敗（リトライ後も回復しないもの）
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrInvalidBook は未定義の book_id
	ErrInvalidBook = errors.New("invalid book_id")

	// ErrIndexNotLoaded は書籍のインデックスが存在しない・読み込めない場合のエラー
	ErrIndexNotLoaded = errors.New("index not loaded")

	// ErrGeneration は回答生成モデル呼び出しの失敗
	ErrGeneration = errors.New("generation error")

	// ErrIngestionInProgress は同一書籍の取り込みが既に実行中の場合のエラー
	ErrIngestionInProgress = errors.New("ingestion already in progress")

	// ErrEmptyQuestion は空の質問
	ErrEmptyQuestion = errors.New("question is required")
)
