package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/book-rag/internal/interface/httpapi"
)

// ServeAction はHTTPサーバを起動するコマンドのアクション
func ServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	cfg := appCtx.Config
	cont := appCtx.Container
	log := appCtx.Logger()

	port := cfg.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}

	// 起動時に読み込めるインデックスは先に読み込んでおく
	loaded := cont.Registry.Preload(ctx)
	log.Info("インデックスを事前読み込みしました", "books", loaded)

	if cfg.Server.Watch || cmd.Bool("watch") {
		if err := cont.StartWatcher(ctx); err != nil {
			return err
		}
	}

	handler := httpapi.NewHandler(
		cont.AskService,
		cont.Registry,
		cont.Store,
		cont.Catalog,
		cont.Embedder.ModelName(),
		log,
	)
	server := httpapi.NewServer(fmt.Sprintf(":%d", port), handler.Routes(), cfg.Server.ShutdownTimeout, log)
	return server.Run(ctx)
}
