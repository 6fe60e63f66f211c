//go:build !arm64

package vectorindex

import "github.com/viant/vec/search"

// cosineDistanceWithMagnitude は viant/vec の非arm64向け公開APIを呼び出す
// （同ライブラリでは非arm64版が CosineDistanceWithMagnitudesNeon の名前で公開されている）
func cosineDistanceWithMagnitude(v, query []float32, m1, m2 float32) float32 {
	return search.Float32s(v).CosineDistanceWithMagnitudesNeon(query, m1, m2)
}
