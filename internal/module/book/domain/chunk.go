package domain

import "github.com/google/uuid"

// Chunk は Embedding 対象となるテキスト断片
// 1つの ExtractedUnit から派生し、そのメタデータをそのまま引き継ぐ
type Chunk struct {
	Text               string
	ChunkID            uuid.UUID
	ChapterID          string
	Part               *string
	SourcePageEstimate int
	HasImage           bool
	ImageRefs          []string
	BookID             BookID
}

// ChunkMetadata は metadata.json の1要素
// フィールド名は永続化フォーマットとして固定
type ChunkMetadata struct {
	Chapter   string   `json:"chapter"`
	Part      *string  `json:"part"`
	PDFPage   int      `json:"pdf_page"`
	HasImage  bool     `json:"has_image"`
	ImageRefs []string `json:"image_refs"`
	BookID    BookID   `json:"book_id"`
	ChunkID   string   `json:"chunk_id"`
}

// Metadata は Chunk から永続化用のメタデータを作成する
func (c Chunk) Metadata() ChunkMetadata {
	refs := c.ImageRefs
	if refs == nil {
		refs = []string{}
	}
	return ChunkMetadata{
		Chapter:   c.ChapterID,
		Part:      c.Part,
		PDFPage:   c.SourcePageEstimate,
		HasImage:  c.HasImage,
		ImageRefs: refs,
		BookID:    c.BookID,
		ChunkID:   c.ChunkID.String(),
	}
}
