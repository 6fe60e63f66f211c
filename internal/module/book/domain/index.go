package domain

import (
	"fmt"

	"github.com/jinford/book-rag/pkg/vectorindex"
)

// BookIndex は1冊分の永続化インデックス
// Vectors の位置 i と Texts[i]・Metadata[i] が対応する
type BookIndex struct {
	BookID   BookID
	Vectors  *vectorindex.Index
	Texts    []string
	Metadata []ChunkMetadata

	// EmbeddingModel は構築に使ったモデル名（クエリ側と一致させる）
	EmbeddingModel string

	// Version は格納先バージョンディレクトリ名（保存・読み込み時に設定）
	Version string
}

// NewBookIndex は chunks と同順の vectors から BookIndex を構築する
func NewBookIndex(bookID BookID, chunks []Chunk, vectors [][]float32) (*BookIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", ErrEmbeddingService, len(vectors), len(chunks))
	}

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	metadata := make([]ChunkMetadata, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ChunkID.String()
		texts[i] = c.Text
		metadata[i] = c.Metadata()
	}

	vi, err := vectorindex.New(ids, vectors)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}

	return &BookIndex{
		BookID:   bookID,
		Vectors:  vi,
		Texts:    texts,
		Metadata: metadata,
	}, nil
}

// Count は格納チャンク数を返す
func (b *BookIndex) Count() int {
	if b == nil || b.Vectors == nil {
		return 0
	}
	return b.Vectors.Count()
}

// Validate はベクトル・テキスト・メタデータの位置対応を検証する
func (b *BookIndex) Validate() error {
	if b == nil || b.Vectors == nil {
		return fmt.Errorf("empty book index")
	}
	n := b.Vectors.Count()
	if len(b.Texts) != n || len(b.Metadata) != n {
		return fmt.Errorf("misaligned book index: vectors=%d texts=%d metadata=%d", n, len(b.Texts), len(b.Metadata))
	}
	for i, m := range b.Metadata {
		if m.ChunkID != b.Vectors.ID(i) {
			return fmt.Errorf("misaligned book index: position %d has chunk %s, vector %s", i, m.ChunkID, b.Vectors.ID(i))
		}
		if m.BookID != b.BookID {
			return fmt.Errorf("book index for %s contains chunk of %s", b.BookID, m.BookID)
		}
	}
	return nil
}
