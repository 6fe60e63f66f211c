package domain

// ExtractedUnit は EPUB 内の構造ドキュメント1件から抽出したテキストとメタデータ
type ExtractedUnit struct {
	Text               string
	ChapterID          string
	Part               *string
	HasImage           bool
	ImageRefs          []string
	SourcePageEstimate int
}
