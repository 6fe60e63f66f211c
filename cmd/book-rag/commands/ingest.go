package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	indexingapp "github.com/jinford/book-rag/internal/module/indexing/application"
)

// ingestOptions は ingest コマンドの引数
type ingestOptions struct {
	book  string
	all   bool
	epub  string
	pdf   string
	pages int
}

// targets は取り込み対象の書籍を返す
func (o ingestOptions) targets() ([]bookdomain.BookID, error) {
	switch {
	case o.all && o.book != "":
		return nil, errors.New("--book と --all は同時に指定できません")
	case o.all:
		if o.epub != "" || o.pdf != "" {
			return nil, errors.New("--all では --epub / --pdf を指定できません（カタログの既定パスを使用します）")
		}
		return bookdomain.AllBooks(), nil
	case o.book != "":
		id, err := bookdomain.ParseBookID(o.book)
		if err != nil {
			return nil, err
		}
		return []bookdomain.BookID{id}, nil
	default:
		return nil, errors.New("--book または --all を指定してください")
	}
}

// IngestAction は EPUB を取り込んでインデックスを構築するコマンドのアクション
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	opts := ingestOptions{
		book:  cmd.String("book"),
		all:   cmd.Bool("all"),
		epub:  cmd.String("epub"),
		pdf:   cmd.String("pdf"),
		pages: int(cmd.Int("pages")),
	}
	if opts.pages < 0 {
		return fmt.Errorf("--pages must not be negative: %d", opts.pages)
	}
	targets, err := opts.targets()
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	params := make([]indexingapp.IndexParams, 0, len(targets))
	for _, id := range targets {
		p, err := appCtx.Container.IndexParams(id, opts.epub, opts.pdf, opts.pages)
		if err != nil {
			return err
		}
		params = append(params, p)
	}

	results, err := appCtx.Container.IndexService.IndexBooks(ctx, params)
	renderIngestResults(os.Stdout, results)
	if err != nil {
		return fmt.Errorf("取り込みに失敗しました: %w", err)
	}
	return nil
}

// renderIngestResults は取り込み結果をテーブル形式で表示します
func renderIngestResults(w io.Writer, results []*indexingapp.IndexResult) {
	table := tablewriter.NewWriter(w)
	table.Header("書籍", "バージョン", "ユニット", "部あり", "チャンク", "画像あり", "トークン/ページ", "最終ページ", "所要時間")
	for _, r := range results {
		if r == nil {
			continue
		}
		var withPart, withImages, lastPage int
		if r.Metrics != nil {
			withPart = r.Metrics.UnitsWithPart
			withImages = r.Metrics.ChunksWithImages
			lastPage = r.Metrics.LastPage
		}
		table.Append(
			r.BookID.String(),
			r.Version,
			fmt.Sprintf("%d", r.Units),
			fmt.Sprintf("%d", withPart),
			fmt.Sprintf("%d", r.Chunks),
			fmt.Sprintf("%d", withImages),
			fmt.Sprintf("%d", r.TokensPerPage),
			fmt.Sprintf("%d", lastPage),
			r.Duration.Round(time.Millisecond).String(),
		)
	}
	table.Render()
}
