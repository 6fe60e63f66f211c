// Package chunker は抽出済みテキストをトークン数で区切った重なり付きチャンクに分割する。
package chunker

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/indexing/domain"
)

const (
	// DefaultChunkSize は1チャンクの最大トークン数
	DefaultChunkSize = 220

	// DefaultOverlap は隣接チャンク間で重ねるトークン数
	DefaultOverlap = 15
)

// boundary は区切り位置の優先度（大きいほど優先）
type boundary int

const (
	boundaryNone boundary = iota
	boundaryWord
	boundarySentence
	boundaryParagraph
)

// Chunker は domain.Chunker の実装
type Chunker struct {
	tokenizer domain.Tokenizer
	size      int
	overlap   int
	logger    *slog.Logger
}

// Option は Chunker のオプション
type Option func(*Chunker)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New は Chunker を作成します
// size <= 0、overlap < 0、overlap >= size の場合は ErrChunking を返す
func New(tokenizer domain.Tokenizer, size, overlap int, opts ...Option) (*Chunker, error) {
	if tokenizer == nil {
		return nil, fmt.Errorf("%w: tokenizer is nil", bookdomain.ErrChunking)
	}
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: invalid size=%d overlap=%d", bookdomain.ErrChunking, size, overlap)
	}

	c := &Chunker{
		tokenizer: tokenizer,
		size:      size,
		overlap:   overlap,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Chunk は unit ごとに独立して分割し、全チャンクを順に返す
func (c *Chunker) Chunk(bookID bookdomain.BookID, units []bookdomain.ExtractedUnit) ([]bookdomain.Chunk, error) {
	if !bookID.Valid() {
		return nil, fmt.Errorf("%w: %s", bookdomain.ErrInvalidBook, bookID)
	}

	var chunks []bookdomain.Chunk
	for i, unit := range units {
		spans, err := c.tokenizer.Tokenize(unit.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: unit %d (%s): %v", bookdomain.ErrChunking, i, unit.ChapterID, err)
		}
		if len(spans) == 0 {
			continue
		}

		for _, w := range c.windows(unit.Text, spans) {
			chunks = append(chunks, newChunk(bookID, unit, unit.Text[spans[w.start].Start:spans[w.end-1].End]))
		}
	}

	c.logger.Debug("chunked units",
		"book_id", bookID.String(),
		"tokenizer", c.tokenizer.Name(),
		"units", len(units),
		"chunks", len(chunks))

	return chunks, nil
}

// window はトークン列上の半開区間 [start, end)
type window struct {
	start int
	end   int
}

// windows は1テキストの分割区間を返す
// 連続する区間はちょうど overlap トークン重なる。ただしルーン途中から始まる
// トークンでは区間を始めないため、その場合に限り重なりは overlap より短くなる
func (c *Chunker) windows(text string, spans []domain.TokenSpan) []window {
	n := len(spans)
	if n <= c.size {
		return []window{{0, n}}
	}

	var out []window
	start := 0
	for {
		if n-start <= c.size {
			out = append(out, window{start, n})
			return out
		}
		end := c.chooseEnd(text, spans, start)
		out = append(out, window{start, end})
		start = end - c.overlap
		for start < end && !runeStartAt(text, spans, start) {
			start++
		}
	}
}

// chooseEnd は (start+overlap, start+size] の中で最も優先度の高い区切りのうち最も右の位置を返す
// 区切り位置と次区間の開始位置 (end-overlap) はルーン境界に限る
func (c *Chunker) chooseEnd(text string, spans []domain.TokenSpan, start int) int {
	limit := start + c.size
	lowest := start + c.overlap + 1

	best := boundaryNone
	bestEnd := limit
	for e := limit; e >= lowest; e-- {
		if !runeStartAt(text, spans, e) || !runeStartAt(text, spans, e-c.overlap) {
			continue
		}
		b := classify(text, spans[e].Start)
		if b > best {
			best = b
			bestEnd = e
			if b == boundaryParagraph {
				break
			}
		}
	}
	if best != boundaryNone {
		return bestEnd
	}

	// 区切りが無い場合は強制分割。可能ならルーン境界まで戻す
	for e := limit; e >= lowest; e-- {
		if runeStartAt(text, spans, e) && runeStartAt(text, spans, e-c.overlap) {
			return e
		}
	}
	for e := limit; e >= lowest; e-- {
		if runeStartAt(text, spans, e) {
			return e
		}
	}
	return limit
}

// runeStartAt は i 番目のトークンがルーンの先頭から始まるかを返す
func runeStartAt(text string, spans []domain.TokenSpan, i int) bool {
	if i >= len(spans) {
		return true
	}
	pos := spans[i].Start
	return pos >= len(text) || utf8.RuneStart(text[pos])
}

// classify は byte 位置 pos の直前で切る場合の区切り種別を返す
func classify(text string, pos int) boundary {
	before, after := text[:pos], text[pos:]

	if strings.HasSuffix(before, "\n\n") || strings.HasPrefix(after, "\n\n") {
		return boundaryParagraph
	}

	spaceBefore := endsWithSpace(before)
	spaceAfter := startsWithSpace(after)
	if !spaceBefore && !spaceAfter {
		return boundaryNone
	}

	trimmed := strings.TrimRightFunc(before, unicode.IsSpace)
	if r, _ := utf8.DecodeLastRuneInString(trimmed); r == '.' || r == '!' || r == '?' {
		return boundarySentence
	}
	return boundaryWord
}

func endsWithSpace(s string) bool {
	r, size := utf8.DecodeLastRuneInString(s)
	return size > 0 && unicode.IsSpace(r)
}

func startsWithSpace(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size > 0 && unicode.IsSpace(r)
}

func newChunk(bookID bookdomain.BookID, unit bookdomain.ExtractedUnit, text string) bookdomain.Chunk {
	var part *string
	if unit.Part != nil {
		p := *unit.Part
		part = &p
	}
	return bookdomain.Chunk{
		Text:               text,
		ChunkID:            uuid.New(),
		ChapterID:          unit.ChapterID,
		Part:               part,
		SourcePageEstimate: unit.SourcePageEstimate,
		HasImage:           unit.HasImage,
		ImageRefs:          append([]string(nil), unit.ImageRefs...),
		BookID:             bookID,
	}
}

var _ domain.Chunker = (*Chunker)(nil)
