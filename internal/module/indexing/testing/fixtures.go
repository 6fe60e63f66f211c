package testing

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// Document は合成 EPUB に含める1文書
type Document struct {
	// Name は OEBPS/text 配下のファイル名
	Name string
	// Body は <body> の中身
	Body string
}

// BuildEPUB は spine が docs の順になる最小構成の EPUB を生成します
func BuildEPUB(docs []Document) ([]byte, error) {
	var manifest, spine strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&manifest, `<item id="d%d" href="text/%s" media-type="application/xhtml+xml"/>`, i, d.Name)
		fmt.Fprintf(&spine, `<itemref idref="d%d"/>`, i)
	}

	files := []struct{ name, body string }{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`},
		{"OEBPS/content.opf", `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0"><metadata/>
<manifest>` + manifest.String() + `</manifest>
<spine>` + spine.String() + `</spine>
</package>`},
	}
	for _, d := range docs {
		files = append(files, struct{ name, body string }{
			"OEBPS/text/" + d.Name,
			`<?xml version="1.0" encoding="UTF-8"?><html xmlns="http://www.w3.org/1999/xhtml"><head><title>` +
				d.Name + `</title></head><body>` + d.Body + `</body></html>`,
		})
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(f.body)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Paragraphs は "<p>text</p>" を連結した本文を返す
func Paragraphs(texts ...string) string {
	var sb strings.Builder
	for _, t := range texts {
		sb.WriteString("<p>")
		sb.WriteString(t)
		sb.WriteString("</p>")
	}
	return sb.String()
}
