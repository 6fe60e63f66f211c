package domain

import "context"

// Embedder はテキストをベクトル表現に変換するインターフェース
type Embedder interface {
	// Embed はテキストからEmbeddingベクトルを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed は複数テキストをまとめてベクトル化する
	// 戻り値は texts と同じ順序・同じ件数であること
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize は1リクエストで送信できる最大件数
	MaxBatchSize() int

	// ModelName はモデル名を返す
	ModelName() string
}
