package application

import (
	"sort"
	"unicode/utf8"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// IndexMetrics は取り込み処理のメトリクスを収集します
type IndexMetrics struct {
	Units            int // 抽出された unit 数
	UnitsWithPart    int // 部の情報を持つ unit 数
	Chunks           int // 生成されたチャンク数
	ChunksWithImages int // 画像参照を持つチャンク数
	LastPage         int // 最終チャンクの推定ページ

	chunkRunes []int // チャンク長（ルーン数）の分布計算用
}

// NewIndexMetrics は新しいIndexMetricsを作成します
func NewIndexMetrics() *IndexMetrics {
	return &IndexMetrics{
		chunkRunes: make([]int, 0),
	}
}

// RecordUnits は抽出結果を記録します
func (m *IndexMetrics) RecordUnits(units []bookdomain.ExtractedUnit) {
	m.Units += len(units)
	for _, u := range units {
		if u.Part != nil {
			m.UnitsWithPart++
		}
	}
}

// RecordChunks は分割結果を記録します
func (m *IndexMetrics) RecordChunks(chunks []bookdomain.Chunk) {
	m.Chunks += len(chunks)
	for _, c := range chunks {
		if c.HasImage {
			m.ChunksWithImages++
		}
		if c.SourcePageEstimate > m.LastPage {
			m.LastPage = c.SourcePageEstimate
		}
		m.chunkRunes = append(m.chunkRunes, utf8.RuneCountInString(c.Text))
	}
}

// ChunkLengthStats はチャンク長の統計
type ChunkLengthStats struct {
	Min int
	P50 int
	P95 int
	Max int
}

// ChunkLengths はチャンク長（ルーン数）の分布を計算します
func (m *IndexMetrics) ChunkLengths() ChunkLengthStats {
	if len(m.chunkRunes) == 0 {
		return ChunkLengthStats{}
	}

	sorted := make([]int, len(m.chunkRunes))
	copy(sorted, m.chunkRunes)
	sort.Ints(sorted)

	return ChunkLengthStats{
		Min: sorted[0],
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		Max: sorted[len(sorted)-1],
	}
}

// percentile はソート済みスライスのパーセンタイル値を計算します
func percentile(sorted []int, p float64) int {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
