package domain

import "unicode/utf8"

const (
	// DefaultTokensPerPage は1ページあたりの平均トークン数（経験値）
	DefaultTokensPerPage = 450

	// CharsPerToken は概算トークン数の換算係数
	CharsPerToken = 4
)

// ApproxTokenLen は文字数/4 による概算トークン数を返す
// 分割用の厳密なトークン数ではなく、ページ推定専用の粗い値
func ApproxTokenLen(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

// EstimatePage は累積トークンオフセットから1始まりの推定ページ番号を返す
//
// これは原本のページ割りに対して較正されていない推定値であり、
// 引用ページとして保証されるものではない（表示用のヒント）。
func EstimatePage(tokenOffset, tokensPerPage int) int {
	if tokensPerPage <= 0 {
		tokensPerPage = DefaultTokensPerPage
	}
	if tokenOffset < 0 {
		tokenOffset = 0
	}
	return max(1, tokenOffset/tokensPerPage+1)
}

// CalibrateTokensPerPage は総概算トークン数と実ページ数から1ページあたりのトークン数を求める
// pages が0以下の場合は既定値を返す
func CalibrateTokensPerPage(totalTokens, pages int) int {
	if pages <= 0 || totalTokens <= 0 {
		return DefaultTokensPerPage
	}
	return max(1, (totalTokens+pages-1)/pages)
}

// TotalApproxTokens は units 全体の概算トークン数を返す
func TotalApproxTokens(units []ExtractedUnit) int {
	var total int
	for _, u := range units {
		total += ApproxTokenLen(u.Text)
	}
	return total
}

// AssignPageEstimates は走査順の累積オフセットから各 unit の推定ページを設定する
func AssignPageEstimates(units []ExtractedUnit, tokensPerPage int) {
	offset := 0
	for i := range units {
		units[i].SourcePageEstimate = EstimatePage(offset, tokensPerPage)
		offset += ApproxTokenLen(units[i].Text)
	}
}
