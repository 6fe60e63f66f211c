// Package vectorindex はコサイン類似度による全件走査のベクトルインデックスを提供する。
//
// 内部IDは追加順の位置（0始まり）であり、メタデータ配列と位置で対応付ける。
package vectorindex

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/viant/vec/search"
)

var (
	// ErrDimensionMismatch はベクトル次元が一致しない場合のエラー
	ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")

	// ErrCorrupted はシリアライズ済みデータが壊れている場合のエラー
	ErrCorrupted = errors.New("vectorindex: corrupted data")
)

// Hit は検索結果1件
type Hit struct {
	// Position はインデックス内の位置（= 内部ID）
	Position int
	ID       string
	Score    float64
}

// Index はコサイン類似度で全件走査するインデックス
// 構築後は読み取り専用で、複数ゴルーチンから同時に Search してよい
type Index struct {
	ids  []string
	vecs [][]float32
	mags []float32
	dim  int
}

// New は ids と vectors からインデックスを構築する
func New(ids []string, vectors [][]float32) (*Index, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%w: ids=%d vectors=%d", ErrDimensionMismatch, len(ids), len(vectors))
	}

	idx := &Index{}
	if len(vectors) == 0 {
		return idx, nil
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-length vector", ErrDimensionMismatch)
	}
	mags := make([]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d dims, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
		mags[i] = search.Float32s(v).Magnitude()
	}

	idx.ids = append([]string(nil), ids...)
	idx.vecs = append([][]float32(nil), vectors...)
	idx.mags = mags
	idx.dim = dim
	return idx, nil
}

// Count は格納ベクトル数を返す
func (x *Index) Count() int {
	return len(x.vecs)
}

// Dimension はベクトル次元数を返す（空の場合は0）
func (x *Index) Dimension() int {
	return x.dim
}

// ID は position の外部IDを返す
func (x *Index) ID(position int) string {
	return x.ids[position]
}

// Search はクエリに対するコサイン類似度の上位 k 件を返す
// k <= 0 の場合は全件を返す。同点は位置の小さい順
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(x.vecs) == 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), x.dim)
	}

	qm := search.Float32s(query).Magnitude()
	if qm == 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(x.vecs))
	for i, v := range x.vecs {
		if x.mags[i] == 0 {
			continue
		}
		s := 1 - float64(cosineDistanceWithMagnitude(v, query, x.mags[i], qm))
		if math.IsNaN(s) {
			continue
		}
		hits = append(hits, Hit{Position: i, ID: x.ids[i], Score: s})
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// WriteTo はインデックスを書き出す
// 形式（リトルエンディアン）: dim u32, n u32, 各要素ごとに idLen u32, id, dim×f32
func (x *Index) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64
	buf := make([]byte, 4)

	putU32 := func(v uint32) error {
		binary.LittleEndian.PutUint32(buf, v)
		n, err := bw.Write(buf)
		written += int64(n)
		return err
	}

	if err := putU32(uint32(x.dim)); err != nil {
		return written, err
	}
	if err := putU32(uint32(len(x.ids))); err != nil {
		return written, err
	}
	for i, id := range x.ids {
		if err := putU32(uint32(len(id))); err != nil {
			return written, err
		}
		n, err := bw.WriteString(id)
		written += int64(n)
		if err != nil {
			return written, err
		}
		for _, f := range x.vecs[i] {
			if err := putU32(math.Float32bits(f)); err != nil {
				return written, err
			}
		}
	}

	return written, bw.Flush()
}

// Read は WriteTo で書き出したデータからインデックスを復元する
func Read(r io.Reader) (*Index, error) {
	br := bufio.NewReader(r)
	buf := make([]byte, 4)

	getU32 := func() (uint32, error) {
		if _, err := io.ReadFull(br, buf); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint32(buf), nil
	}

	dim, err := getU32()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupted, err)
	}
	n, err := getU32()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupted, err)
	}
	if n > 0 && dim == 0 {
		return nil, fmt.Errorf("%w: %d vectors with zero dimension", ErrCorrupted, n)
	}

	ids := make([]string, 0, min(int(n), 1<<16))
	vecs := make([][]float32, 0, min(int(n), 1<<16))
	for i := 0; i < int(n); i++ {
		idLen, err := getU32()
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrCorrupted, i, err)
		}
		id := make([]byte, idLen)
		if _, err := io.ReadFull(br, id); err != nil {
			return nil, fmt.Errorf("%w: item %d id: %v", ErrCorrupted, i, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			bits, err := getU32()
			if err != nil {
				return nil, fmt.Errorf("%w: item %d vector: %v", ErrCorrupted, i, err)
			}
			vec[j] = math.Float32frombits(bits)
		}
		ids = append(ids, string(id))
		vecs = append(vecs, vec)
	}

	if _, err := br.ReadByte(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing bytes", ErrCorrupted)
	}

	return New(ids, vecs)
}
