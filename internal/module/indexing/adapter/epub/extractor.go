// Package epub は EPUB コンテナから構造文書ごとのテキストを抽出する。
package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/indexing/domain"
)

// imageExt は画像参照として記録する拡張子
var imageExt = regexp.MustCompile(`(?i)\.(png|jpe?g|gif)$`)

// Extractor は EPUB 用の domain.Extractor 実装
type Extractor struct {
	logger *slog.Logger
}

// Option は Extractor のオプション
type Option func(*Extractor)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExtractor は Extractor を作成する
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract は EPUB ファイルを spine の読み順に走査して unit を返す
func (e *Extractor) Extract(ctx context.Context, filePath string, opts domain.ExtractOptions) ([]bookdomain.ExtractedUnit, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", bookdomain.ErrContainerParse, filePath, err)
	}
	defer zr.Close()

	return e.extract(ctx, &zr.Reader, opts)
}

// ExtractReader はメモリ上の EPUB から unit を返す
func (e *Extractor) ExtractReader(ctx context.Context, data []byte, opts domain.ExtractOptions) ([]bookdomain.ExtractedUnit, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bookdomain.ErrContainerParse, err)
	}
	return e.extract(ctx, zr, opts)
}

func (e *Extractor) extract(ctx context.Context, zr *zip.Reader, opts domain.ExtractOptions) ([]bookdomain.ExtractedUnit, error) {
	a, err := openArchive(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bookdomain.ErrContainerParse, err)
	}

	parts := partIndex(a.readTOC())
	docs := a.spineDocs()

	units := make([]bookdomain.ExtractedUnit, 0, len(docs))
	skipped := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := a.readFile(doc.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", bookdomain.ErrContainerParse, err)
		}

		text, images, err := cleanDocument(data, opts.StripFootnotes)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", bookdomain.ErrContainerParse, doc.Name, err)
		}
		if text == "" {
			skipped++
			continue
		}

		unit := bookdomain.ExtractedUnit{
			Text:      text,
			ChapterID: doc.Href,
			HasImage:  len(images) > 0,
			ImageRefs: images,
		}
		if label, ok := parts[doc.Name]; ok {
			part := label
			unit.Part = &part
		}
		units = append(units, unit)
	}

	bookdomain.AssignPageEstimates(units, opts.TokensPerPage)

	e.logger.Debug("epub extracted",
		"documents", len(docs),
		"units", len(units),
		"skipped_empty", skipped,
		"parts", len(parts) > 0)

	return units, nil
}

// cleanDocument は XHTML 文書から本文テキストと画像ファイル名を取り出す
func cleanDocument(data []byte, stripFootnotes bool) (string, []string, error) {
	root, err := parseXHTML(data)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	var images []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Head, atom.Script, atom.Style, atom.Noscript, atom.Svg, atom.Title:
				return
			case atom.Sup:
				if stripFootnotes {
					return
				}
			case atom.Img:
				if name := imageName(attrValue(n, "src")); name != "" {
					images = append(images, name)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return collapseSpaces(sb.String()), images, nil
}

// imageName は src から対象拡張子の画像ファイル名を返す
func imageName(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	name := path.Base(src)
	if name == "." || name == "/" || !imageExt.MatchString(name) {
		return ""
	}
	return name
}

var _ domain.Extractor = (*Extractor)(nil)
