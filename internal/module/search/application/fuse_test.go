package application

import (
	"testing"

	"github.com/stretchr/testify/assert"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/search/adapter/lexical"
	"github.com/jinford/book-rag/pkg/vectorindex"
)

func TestFuse_ReciprocalRankFusion(t *testing.T) {
	idx := &bookdomain.BookIndex{
		Texts: []string{"a", "b", "c", "d"},
		Metadata: []bookdomain.ChunkMetadata{
			{ChunkID: "0"}, {ChunkID: "1"}, {ChunkID: "2"}, {ChunkID: "3"},
		},
	}
	semantic := []vectorindex.Hit{
		{Position: 2, Score: 0.9},
		{Position: 0, Score: 0.8},
		{Position: 3, Score: 0.7},
	}
	// プール内の位置1（テキスト "a"）を語彙検索の1位にする
	lex := []lexical.Hit{{Index: 1, Score: 3.2}}

	got := fuse(idx, semantic, lex)

	assert.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Text)
	assert.InDelta(t, 1.0/62+1.0/61, got[0].Score, 1e-12)
	assert.InDelta(t, 3.2, got[0].LexicalScore, 1e-12)
	assert.Equal(t, "c", got[1].Text)
	assert.InDelta(t, 1.0/61, got[1].Score, 1e-12)
	assert.Equal(t, "d", got[2].Text)
	assert.Zero(t, got[2].LexicalScore)
}

func TestFuse_TieBreaksBySemanticRankAndDedupes(t *testing.T) {
	idx := &bookdomain.BookIndex{
		Texts:    []string{"same", "other", "same"},
		Metadata: make([]bookdomain.ChunkMetadata, 3),
	}
	semantic := []vectorindex.Hit{
		{Position: 0, Score: 0.9},
		{Position: 1, Score: 0.8},
		{Position: 2, Score: 0.7},
	}
	// 1位と2位が同点になる
	lex := []lexical.Hit{{Index: 1, Score: 1}, {Index: 0, Score: 0.5}}

	got := fuse(idx, semantic, lex)

	assert.Len(t, got, 2)
	assert.Equal(t, "same", got[0].Text)
	assert.Equal(t, "other", got[1].Text)
}
