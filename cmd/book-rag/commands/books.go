package commands

import (
	"context"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/indexing/adapter/filestore"
)

// BooksAction は書籍カタログとインデックスの有無を表示するコマンドのアクション
// API キーが無くても動作するようにコンテナは組み立てない
func BooksAction(_ context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}

	store := filestore.New(cfg.IndexDir, filestore.WithLogger(log))
	renderBooks(os.Stdout, cfg.Books, store)
	return nil
}

// renderBooks は書籍一覧をテーブル形式で表示します
func renderBooks(w io.Writer, catalog bookdomain.Catalog, store interface{ Exists(bookdomain.Book) bool }) {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "タイトル", "インデックス", "取り込み済み", "EPUB")
	for _, b := range catalog.Books() {
		indexed := "no"
		if store.Exists(b) {
			indexed = "yes"
		}
		table.Append(b.ID.String(), b.Title, b.IndexDir, indexed, b.EPUBPath)
	}
	table.Render()
}
