package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// booksFile は BOOKS_CONFIG の YAML 構造
//
//	books:
//	  debt_crisis:
//	    title: ...
//	    index_dir: big_debt_crisis
//	    epub_path: data/BigDebtCrisis.epub
type booksFile struct {
	Books map[string]bookOverride `yaml:"books"`
}

type bookOverride struct {
	Title          string `yaml:"title"`
	Description    string `yaml:"description"`
	IndexDir       string `yaml:"index_dir"`
	EPUBPath       string `yaml:"epub_path"`
	PDFPath        string `yaml:"pdf_path"`
	StripFootnotes *bool  `yaml:"strip_footnotes"`
}

// LoadBooks は組み込みカタログに path の上書きを適用して返します
// path が空、またはファイルが存在しない場合は組み込みカタログを返します
func LoadBooks(path string) (bookdomain.Catalog, error) {
	catalog := bookdomain.DefaultCatalog()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return catalog, nil
		}
		return nil, fmt.Errorf("failed to read books config: %w", err)
	}

	var file booksFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse books config %s: %w", path, err)
	}

	dirs := make(map[string]bookdomain.BookID)
	for key, o := range file.Books {
		id, err := bookdomain.ParseBookID(key)
		if err != nil {
			return nil, fmt.Errorf("books config %s: %w", path, err)
		}
		catalog[id] = o.apply(catalog[id])
	}

	// 同じディレクトリを2冊で共有するとインデックスが上書きされる
	for _, b := range catalog.Books() {
		if b.IndexDir == "" {
			return nil, fmt.Errorf("books config %s: index_dir of %s is empty", path, b.ID)
		}
		if other, ok := dirs[b.IndexDir]; ok {
			return nil, fmt.Errorf("books config %s: %s and %s share index_dir %q", path, other, b.ID, b.IndexDir)
		}
		dirs[b.IndexDir] = b.ID
	}

	return catalog, nil
}

func (o bookOverride) apply(b bookdomain.Book) bookdomain.Book {
	if o.Title != "" {
		b.Title = o.Title
	}
	if o.Description != "" {
		b.Description = o.Description
	}
	if o.IndexDir != "" {
		b.IndexDir = o.IndexDir
	}
	if o.EPUBPath != "" {
		b.EPUBPath = o.EPUBPath
	}
	if o.PDFPath != "" {
		b.PDFPath = o.PDFPath
	}
	if o.StripFootnotes != nil {
		b.StripFootnotes = *o.StripFootnotes
	}
	return b
}
