package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/book-rag/cmd/book-rag/commands"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "book-rag",
		Usage: "2冊の書籍を対象にしたクローズドブック質問応答システム",
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "EPUB を取り込んでインデックスを構築",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "book",
						Usage: "書籍ID（debt_crisis | capitalism）",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "カタログの全書籍を取り込む",
					},
					&cli.StringFlag{
						Name:  "epub",
						Usage: "EPUBファイルパス（省略時はカタログの既定パス）",
					},
					&cli.StringFlag{
						Name:  "pdf",
						Usage: "ページ較正用のPDFパス（内容は解析しない）",
					},
					&cli.IntFlag{
						Name:  "pages",
						Usage: "原本の総ページ数（指定時に推定ページを較正）",
					},
				},
				Action: commands.IngestAction,
			},
			{
				Name:  "serve",
				Usage: "HTTPサーバを起動",
				Flags: []cli.Flag{
					envFlag(),
					&cli.IntFlag{
						Name:  "port",
						Usage: "待ち受けポート（省略時は PORT）",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "インデックスの差し替えを検知して再読み込み",
					},
				},
				Action: commands.ServeAction,
			},
			{
				Name:  "ask",
				Usage: "書籍に質問する",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "book",
						Usage:    "書籍ID（debt_crisis | capitalism）",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "question",
						Usage:    "質問文",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "回答が根拠パッセージに裏付けられているか確認",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "JSON形式で出力",
					},
				},
				Action: commands.AskAction,
			},
			{
				Name:  "books",
				Usage: "書籍カタログとインデックスの有無を表示",
				Flags: []cli.Flag{
					envFlag(),
				},
				Action: commands.BooksAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
