package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// containerXML は META-INF/container.xml
type containerXML struct {
	Rootfiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

// packageXML は OPF パッケージ文書
type packageXML struct {
	Manifest []manifestItem `xml:"manifest>item"`
	Spine    struct {
		TOC      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// spineDoc は読み順に並んだ構造文書1件
type spineDoc struct {
	// Href は OPF からの相対パス（章IDとして使う）
	Href string
	// Name は zip 内の絶対パス
	Name string
}

// archive は開いた EPUB コンテナ
type archive struct {
	files   map[string]*zip.File
	opfPath string
	pkg     packageXML
}

const containerPath = "META-INF/container.xml"

func openArchive(r *zip.Reader) (*archive, error) {
	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}

	a := &archive{files: files}

	var c containerXML
	if err := a.decodeXML(containerPath, &c); err != nil {
		return nil, err
	}
	for _, rf := range c.Rootfiles {
		if rf.FullPath != "" && (rf.MediaType == "" || rf.MediaType == "application/oebps-package+xml") {
			a.opfPath = rf.FullPath
			break
		}
	}
	if a.opfPath == "" {
		return nil, fmt.Errorf("no rootfile in %s", containerPath)
	}

	if err := a.decodeXML(a.opfPath, &a.pkg); err != nil {
		return nil, err
	}
	if len(a.pkg.Spine.ItemRefs) == 0 {
		return nil, fmt.Errorf("empty spine in %s", a.opfPath)
	}
	return a, nil
}

// readFile は zip 内のファイルを読み込む
func (a *archive) readFile(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("missing %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (a *archive) decodeXML(name string, v any) error {
	data, err := a.readFile(name)
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// resolve は base 文書からの相対 href を zip 内パスに変換する（フラグメントは除去）
func resolve(base, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if href == "" {
		return ""
	}
	return path.Clean(path.Join(path.Dir(base), href))
}

// spineDocs は spine の順に XHTML 文書を返す
func (a *archive) spineDocs() []spineDoc {
	byID := make(map[string]manifestItem, len(a.pkg.Manifest))
	for _, item := range a.pkg.Manifest {
		byID[item.ID] = item
	}

	docs := make([]spineDoc, 0, len(a.pkg.Spine.ItemRefs))
	for _, ref := range a.pkg.Spine.ItemRefs {
		item, ok := byID[ref.IDRef]
		if !ok || !isDocument(item.MediaType) {
			continue
		}
		href := item.Href
		if unescaped, err := url.PathUnescape(href); err == nil {
			href = unescaped
		}
		docs = append(docs, spineDoc{
			Href: href,
			Name: resolve(a.opfPath, item.Href),
		})
	}
	return docs
}

// navItem は EPUB3 の nav 文書
func (a *archive) navItem() (manifestItem, bool) {
	for _, item := range a.pkg.Manifest {
		for _, p := range strings.Fields(item.Properties) {
			if p == "nav" {
				return item, true
			}
		}
	}
	return manifestItem{}, false
}

// ncxItem は EPUB2 の NCX 文書
func (a *archive) ncxItem() (manifestItem, bool) {
	for _, item := range a.pkg.Manifest {
		if a.pkg.Spine.TOC != "" && item.ID == a.pkg.Spine.TOC {
			return item, true
		}
	}
	for _, item := range a.pkg.Manifest {
		if item.MediaType == "application/x-dtbncx+xml" {
			return item, true
		}
	}
	return manifestItem{}, false
}

func isDocument(mediaType string) bool {
	switch mediaType {
	case "application/xhtml+xml", "text/html", "application/x-dtbook+xml":
		return true
	default:
		return false
	}
}
