// Package lexical は BM25 (Okapi) による語彙検索を提供する。
//
// インデックスはクエリごとに候補集合から構築する前提の小さな実装で、
// 全文コーパスに対する転置インデックスは持たない。
package lexical

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	// DefaultK1 は語頻度の飽和パラメータ
	DefaultK1 = 1.5
	// DefaultB は文書長正規化の強さ
	DefaultB = 0.75
	// DefaultEpsilon は負の IDF を置き換える平均 IDF に対する係数
	DefaultEpsilon = 0.25
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`)

// Tokenize は小文字化した単語列を返す
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Hit は語彙検索の結果1件
type Hit struct {
	// Index は構築時に渡した文書の位置
	Index int
	Score float64
}

// BM25 は文書集合に対する BM25 スコアラー
type BM25 struct {
	k1      float64
	b       float64
	epsilon float64

	freqs  []map[string]int
	docLen []int
	avgdl  float64
	idf    map[string]float64
}

// New は docs から BM25 を構築します
func New(docs []string) *BM25 {
	m := &BM25{
		k1:      DefaultK1,
		b:       DefaultB,
		epsilon: DefaultEpsilon,
		freqs:   make([]map[string]int, len(docs)),
		docLen:  make([]int, len(docs)),
		idf:     make(map[string]float64),
	}

	docFreq := make(map[string]int)
	total := 0
	for i, doc := range docs {
		tokens := Tokenize(doc)
		freq := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freq[tok]++
		}
		for tok := range freq {
			docFreq[tok]++
		}
		m.freqs[i] = freq
		m.docLen[i] = len(tokens)
		total += len(tokens)
	}
	if len(docs) > 0 {
		m.avgdl = float64(total) / float64(len(docs))
	}

	// 出現文書数が半数を超える語は IDF が負になるため平均 IDF の epsilon 倍で置き換える
	n := float64(len(docs))
	var idfSum float64
	var negative []string
	for tok, df := range docFreq {
		v := math.Log(n-float64(df)+0.5) - math.Log(float64(df)+0.5)
		m.idf[tok] = v
		idfSum += v
		if v < 0 {
			negative = append(negative, tok)
		}
	}
	if len(docFreq) > 0 {
		eps := m.epsilon * idfSum / float64(len(docFreq))
		for _, tok := range negative {
			m.idf[tok] = eps
		}
	}

	return m
}

// Len は文書数を返す
func (m *BM25) Len() int {
	return len(m.freqs)
}

// Scores は各文書のスコアを構築時の順で返す
func (m *BM25) Scores(query string) []float64 {
	scores := make([]float64, len(m.freqs))
	if m.avgdl == 0 {
		return scores
	}
	for _, q := range Tokenize(query) {
		idf, ok := m.idf[q]
		if !ok {
			continue
		}
		for i, freq := range m.freqs {
			tf := float64(freq[q])
			if tf == 0 {
				continue
			}
			norm := 1 - m.b + m.b*float64(m.docLen[i])/m.avgdl
			scores[i] += idf * tf * (m.k1 + 1) / (tf + m.k1*norm)
		}
	}
	return scores
}

// Top はスコアが正の文書を降順に最大 k 件返す（同点は構築時の順）
func (m *BM25) Top(query string, k int) []Hit {
	scores := m.Scores(query)
	hits := make([]Hit, 0, len(scores))
	for i, s := range scores {
		if s > 0 {
			hits = append(hits, Hit{Index: i, Score: s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
