package chunker

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/jinford/book-rag/internal/module/indexing/domain"
)

const (
	// DefaultEncoding は生成モデル（GPT-4 系）と同じトークン計数に使うエンコーディング
	DefaultEncoding = "cl100k_base"

	// WordsEncoding は空白区切りの簡易トークナイザ名
	WordsEncoding = "words"
)

// TiktokenTokenizer は tiktoken による domain.Tokenizer 実装
type TiktokenTokenizer struct {
	encoding string
	encoder  *tiktoken.Tiktoken
}

var useOfflineBPE sync.Once

// NewTiktokenTokenizer は指定エンコーディングの Tokenizer を作成します
// BPE 定義はバイナリに同梱されたものを使い、ネットワークから取得しない
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	useOfflineBPE.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	encoder, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}
	return &TiktokenTokenizer{encoding: encoding, encoder: encoder}, nil
}

// Tokenize はトークンごとのバイト範囲を返す
// 各トークンを個別にデコードしたバイト長を積み上げる
func (t *TiktokenTokenizer) Tokenize(text string) ([]domain.TokenSpan, error) {
	tokens := t.encoder.Encode(text, nil, nil)
	spans := make([]domain.TokenSpan, 0, len(tokens))

	pos := 0
	for _, tok := range tokens {
		n := len(t.encoder.Decode([]int{tok}))
		spans = append(spans, domain.TokenSpan{Start: pos, End: pos + n})
		pos += n
	}
	if pos != len(text) {
		return nil, fmt.Errorf("token spans cover %d of %d bytes", pos, len(text))
	}
	return spans, nil
}

// Name はエンコーディング名を返す
func (t *TiktokenTokenizer) Name() string {
	return t.encoding
}

var wordToken = regexp.MustCompile(`\s*\S+`)

// WordTokenizer は「先行空白 + 非空白列」を1トークンとみなす簡易トークナイザ
// TOKENIZER_ENCODING=words で選択する
type WordTokenizer struct{}

// Tokenize は単語単位のバイト範囲を返す（末尾の空白は最後のトークンに含める）
func (WordTokenizer) Tokenize(text string) ([]domain.TokenSpan, error) {
	locs := wordToken.FindAllStringIndex(text, -1)
	spans := make([]domain.TokenSpan, len(locs))
	for i, loc := range locs {
		spans[i] = domain.TokenSpan{Start: loc[0], End: loc[1]}
	}
	if len(spans) > 0 {
		spans[len(spans)-1].End = len(text)
	}
	return spans, nil
}

// Name はトークナイザ名を返す
func (WordTokenizer) Name() string {
	return WordsEncoding
}

// NewTokenizer は名前に応じた Tokenizer を返す
func NewTokenizer(name string) (domain.Tokenizer, error) {
	switch name {
	case WordsEncoding:
		return WordTokenizer{}, nil
	default:
		return NewTiktokenTokenizer(name)
	}
}

var (
	_ domain.Tokenizer = (*TiktokenTokenizer)(nil)
	_ domain.Tokenizer = WordTokenizer{}
)
