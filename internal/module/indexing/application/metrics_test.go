package application

import (
	"testing"

	"github.com/stretchr/testify/assert"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

func TestIndexMetrics_Record(t *testing.T) {
	part := "Part One"
	m := NewIndexMetrics()

	m.RecordUnits([]bookdomain.ExtractedUnit{
		{Text: "a", Part: &part},
		{Text: "b"},
		{Text: "c", Part: &part},
	})
	m.RecordChunks([]bookdomain.Chunk{
		{Text: "abcd", HasImage: true, SourcePageEstimate: 1},
		{Text: "ab", SourcePageEstimate: 3},
		{Text: "abcdef", HasImage: true, SourcePageEstimate: 2},
	})

	assert.Equal(t, 3, m.Units)
	assert.Equal(t, 2, m.UnitsWithPart)
	assert.Equal(t, 3, m.Chunks)
	assert.Equal(t, 2, m.ChunksWithImages)
	assert.Equal(t, 3, m.LastPage)

	lengths := m.ChunkLengths()
	assert.Equal(t, 2, lengths.Min)
	assert.Equal(t, 6, lengths.Max)
}

func TestIndexMetrics_EmptyChunkLengths(t *testing.T) {
	assert.Equal(t, ChunkLengthStats{}, NewIndexMetrics().ChunkLengths())
}
