// Package filestore は書籍インデックスをディレクトリ単位で永続化する。
//
// レイアウト:
//
//	<root>/<dir>                        -> .versions/<dir>-<timestamp>-<uuid> へのシンボリックリンク
//	<root>/.versions/<dir>-.../index.bin
//	<root>/.versions/<dir>-.../docstore.json
//	<root>/.versions/<dir>-.../metadata.json
//	<root>/.versions/<dir>-.../manifest.json
//
// 新しいバージョンを書き終えてからリンクを rename で差し替えるため、
// 読み手が書き込み途中の状態を見ることはない。
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/indexing/domain"
	"github.com/jinford/book-rag/pkg/vectorindex"
)

const (
	// IndexFile はベクトルインデックスのファイル名
	IndexFile = "index.bin"
	// DocstoreFile はチャンク本文のファイル名
	DocstoreFile = "docstore.json"
	// MetadataFile はチャンクメタデータのファイル名
	MetadataFile = "metadata.json"
	// ManifestFile はバージョン情報のファイル名
	ManifestFile = "manifest.json"

	versionsDir = ".versions"
	tmpPrefix   = ".tmp-"
)

// Manifest はバージョンごとの付帯情報
type Manifest struct {
	BookID         bookdomain.BookID `json:"book_id"`
	Count          int               `json:"count"`
	Dimension      int               `json:"dimension"`
	EmbeddingModel string            `json:"embedding_model"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Store はファイルシステム上の domain.IndexStore 実装
type Store struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// Option は Store のオプション
type Option func(*Store)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock は時刻関数を差し替える
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New は root 配下にインデックスを格納する Store を作成します
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:   root,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root はインデックスのルートディレクトリを返す
func (s *Store) Root() string {
	return s.root
}

// Path は書籍の現在のインデックスパス（リンク）を返す
func (s *Store) Path(book bookdomain.Book) string {
	return filepath.Join(s.root, book.IndexDir)
}

// Exists は現在のバージョンが存在するかを返す
func (s *Store) Exists(book bookdomain.Book) bool {
	_, err := os.Stat(filepath.Join(s.Path(book), MetadataFile))
	return err == nil
}

// Save は新しいバージョンを書き出し、リンクを原子的に差し替える
// 失敗時は書きかけのディレクトリを削除し、既存のバージョンには触れない
func (s *Store) Save(ctx context.Context, book bookdomain.Book, index *bookdomain.BookIndex) (string, error) {
	if err := index.Validate(); err != nil {
		return "", fmt.Errorf("refusing to save %s: %w", book.ID, err)
	}
	if book.IndexDir == "" {
		return "", fmt.Errorf("book %s has no index directory", book.ID)
	}

	versions := filepath.Join(s.root, versionsDir)
	if err := os.MkdirAll(versions, 0o755); err != nil {
		return "", fmt.Errorf("failed to create versions directory: %w", err)
	}

	now := s.now().UTC()
	version := fmt.Sprintf("%s-%s-%s", book.IndexDir, now.Format("20060102T150405Z"), uuid.NewString())
	tmp := filepath.Join(versions, tmpPrefix+version)
	final := filepath.Join(versions, version)

	if err := os.Mkdir(tmp, 0o755); err != nil {
		return "", fmt.Errorf("failed to create version directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	manifest := Manifest{
		BookID:         book.ID,
		Count:          index.Count(),
		Dimension:      index.Vectors.Dimension(),
		EmbeddingModel: index.EmbeddingModel,
		CreatedAt:      now,
	}
	if err := writeVersion(ctx, tmp, index, manifest); err != nil {
		return "", err
	}

	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("failed to finalize version directory: %w", err)
	}
	committed = true

	previous, err := s.swapLink(book, version)
	if err != nil {
		_ = os.RemoveAll(final)
		return "", err
	}
	index.Version = version

	s.prune(book, version, previous)

	s.logger.Info("index saved",
		"book_id", book.ID.String(),
		"version", version,
		"previous", previous,
		"count", manifest.Count)

	return version, nil
}

func writeVersion(ctx context.Context, dir string, index *bookdomain.BookIndex, manifest Manifest) error {
	if err := writeFile(filepath.Join(dir, IndexFile), func(f *os.File) error {
		_, err := index.Vectors.WriteTo(f)
		return err
	}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(dir, DocstoreFile), index.Texts); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, MetadataFile), index.Metadata); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, ManifestFile), manifest)
}

func writeJSON(path string, v any) error {
	return writeFile(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	})
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// swapLink は <root>/<dir> を新バージョンへのリンクに置き換え、直前のバージョン名を返す
func (s *Store) swapLink(book bookdomain.Book, version string) (string, error) {
	link := s.Path(book)

	var previous string
	if info, err := os.Lstat(link); err == nil {
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			if target, err := os.Readlink(link); err == nil {
				previous = filepath.Base(target)
			}
		case info.IsDir():
			// リンク導入前の実ディレクトリは退避して1世代前として残す
			previous = fmt.Sprintf("%s-legacy-%s", book.IndexDir, s.now().UTC().Format("20060102T150405Z"))
			if err := os.Rename(link, filepath.Join(s.root, versionsDir, previous)); err != nil {
				return "", fmt.Errorf("failed to move legacy index directory: %w", err)
			}
		default:
			return "", fmt.Errorf("%s exists and is not an index directory", link)
		}
	}

	tmpLink := filepath.Join(s.root, fmt.Sprintf(".%s.link-%s", book.IndexDir, uuid.NewString()))
	if err := os.Symlink(filepath.Join(versionsDir, version), tmpLink); err != nil {
		return "", fmt.Errorf("failed to create index link: %w", err)
	}
	if err := os.Rename(tmpLink, link); err != nil {
		_ = os.Remove(tmpLink)
		return "", fmt.Errorf("failed to swap index link: %w", err)
	}
	return previous, nil
}

// prune は現在と直前のバージョンを残し、同じ書籍の古いバージョンと書きかけを削除する
func (s *Store) prune(book bookdomain.Book, current, previous string) {
	versions := filepath.Join(s.root, versionsDir)
	entries, err := os.ReadDir(versions)
	if err != nil {
		return
	}

	prefix := book.IndexDir + "-"
	for _, e := range entries {
		name := e.Name()
		if name == current || name == previous {
			continue
		}
		if !strings.HasPrefix(name, prefix) && !strings.HasPrefix(name, tmpPrefix+prefix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(versions, name)); err != nil {
			s.logger.Warn("failed to prune index version", "version", name, "error", err)
		}
	}
}

// Load は現在のバージョンを読み込む
func (s *Store) Load(ctx context.Context, book bookdomain.Book) (*bookdomain.BookIndex, error) {
	// リンクを一度だけ解決し、以降は同一バージョンから読む
	dir, err := filepath.EvalSymlinks(s.Path(book))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", bookdomain.ErrIndexNotLoaded, book.ID, err)
	}

	index, err := loadVersion(ctx, dir, book.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", bookdomain.ErrIndexNotLoaded, book.ID, err)
	}
	index.Version = filepath.Base(dir)
	return index, nil
}

func loadVersion(ctx context.Context, dir string, bookID bookdomain.BookID) (*bookdomain.BookIndex, error) {
	f, err := os.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, err
	}
	vectors, err := vectorindex.Read(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var texts []string
	if err := readJSON(filepath.Join(dir, DocstoreFile), &texts); err != nil {
		return nil, err
	}
	var metadata []bookdomain.ChunkMetadata
	if err := readJSON(filepath.Join(dir, MetadataFile), &metadata); err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := readJSON(filepath.Join(dir, ManifestFile), &manifest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	index := &bookdomain.BookIndex{
		BookID:         bookID,
		Vectors:        vectors,
		Texts:          texts,
		Metadata:       metadata,
		EmbeddingModel: manifest.EmbeddingModel,
	}
	if err := index.Validate(); err != nil {
		return nil, err
	}
	return index, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

var _ domain.IndexStore = (*Store)(nil)
