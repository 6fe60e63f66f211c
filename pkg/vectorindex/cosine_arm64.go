//go:build arm64

package vectorindex

import "github.com/viant/vec/search"

// cosineDistanceWithMagnitude は viant/vec の arm64 向け公開APIを呼び出す
func cosineDistanceWithMagnitude(v, query []float32, m1, m2 float32) float32 {
	return search.Float32s(v).CosineDistanceWithMagnitude(query, m1, m2)
}
