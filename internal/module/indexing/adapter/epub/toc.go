package epub

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// tocEntry は目次の1項目
type tocEntry struct {
	Label    string
	Name     string // zip 内パス
	Children []tocEntry
}

type ncxXML struct {
	NavPoints []ncxNavPoint `xml:"navMap>navPoint"`
}

type ncxNavPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// readTOC は EPUB3 nav を優先し、なければ NCX から目次を読み込む
// 目次が無い・読めない場合は nil を返す（部の情報は付与しない）
func (a *archive) readTOC() []tocEntry {
	if item, ok := a.navItem(); ok {
		name := resolve(a.opfPath, item.Href)
		if data, err := a.readFile(name); err == nil {
			if entries := parseNav(data, name); len(entries) > 0 {
				return entries
			}
		}
	}

	if item, ok := a.ncxItem(); ok {
		name := resolve(a.opfPath, item.Href)
		var ncx ncxXML
		if err := a.decodeXML(name, &ncx); err == nil {
			return convertNavPoints(ncx.NavPoints, name)
		}
	}
	return nil
}

func convertNavPoints(points []ncxNavPoint, base string) []tocEntry {
	entries := make([]tocEntry, 0, len(points))
	for _, p := range points {
		entries = append(entries, tocEntry{
			Label:    collapseSpaces(p.Label),
			Name:     resolve(base, p.Content.Src),
			Children: convertNavPoints(p.Children, base),
		})
	}
	return entries
}

// parseNav は nav 文書の toc 用 <nav> から目次を組み立てる
func parseNav(data []byte, base string) []tocEntry {
	doc, err := parseXHTML(data)
	if err != nil {
		return nil
	}

	var navs []*html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav {
			navs = append(navs, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if len(navs) == 0 {
		return nil
	}

	nav := navs[0]
	for _, n := range navs {
		if isTOCNav(n) {
			nav = n
			break
		}
	}

	for c := nav.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Ol {
			return parseNavList(c, base)
		}
	}
	return nil
}

func isTOCNav(n *html.Node) bool {
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if (strings.HasSuffix(key, "type") || key == "role") && strings.Contains(attr.Val, "toc") {
			return true
		}
	}
	return false
}

func parseNavList(ol *html.Node, base string) []tocEntry {
	var entries []tocEntry
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		var entry tocEntry
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.A:
				entry.Name = resolve(base, attrValue(c, "href"))
				entry.Label = collapseSpaces(textContent(c))
			case atom.Span:
				if entry.Label == "" {
					entry.Label = collapseSpaces(textContent(c))
				}
			case atom.Ol:
				entry.Children = append(entry.Children, parseNavList(c, base)...)
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// partIndex は文書パスから最上位目次項目のラベルを引く対応表を作る
// 目次が入れ子でない場合は部の概念が無いものとして空を返す
func partIndex(entries []tocEntry) map[string]string {
	nested := false
	for _, e := range entries {
		if len(e.Children) > 0 {
			nested = true
			break
		}
	}
	if !nested {
		return nil
	}

	parts := make(map[string]string)
	var mark func(e tocEntry, label string)
	mark = func(e tocEntry, label string) {
		if e.Name != "" {
			if _, ok := parts[e.Name]; !ok {
				parts[e.Name] = label
			}
		}
		for _, c := range e.Children {
			mark(c, label)
		}
	}
	for _, e := range entries {
		if len(e.Children) == 0 || e.Label == "" {
			continue
		}
		mark(e, e.Label)
	}
	return parts
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
