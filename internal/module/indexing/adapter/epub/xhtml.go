package epub

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// selfClosingTag は XML 形式の空要素タグ <name attrs/> にマッチする
var selfClosingTag = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9:._-]*)((?:\s+[^\s=/>]+(?:\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'>]+))?)*)\s*/>`)

// voidElements は HTML5 で終了タグを持たない要素
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "param": true,
	"source": true, "track": true, "wbr": true,
}

// parseXHTML は XHTML 文書を HTML5 パーサで解析する
// HTML5 パーサは非 void 要素の "/>" を開始タグとして扱うため、
// <title/> や <script/> が以降の本文を飲み込まないよう事前に <x></x> へ展開する
func parseXHTML(data []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(expandSelfClosing(data)))
}

func expandSelfClosing(data []byte) []byte {
	return selfClosingTag.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := selfClosingTag.FindSubmatch(m)
		name := string(sub[1])
		if voidElements[strings.ToLower(name)] {
			return m
		}
		out := make([]byte, 0, len(m)+len(name)+3)
		out = append(out, '<')
		out = append(out, sub[1]...)
		out = append(out, sub[2]...)
		out = append(out, "></"...)
		out = append(out, sub[1]...)
		out = append(out, '>')
		return out
	})
}
