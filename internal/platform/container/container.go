package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	askapp "github.com/jinford/book-rag/internal/module/ask/application"
	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	"github.com/jinford/book-rag/internal/module/indexing/adapter/chunker"
	"github.com/jinford/book-rag/internal/module/indexing/adapter/epub"
	"github.com/jinford/book-rag/internal/module/indexing/adapter/filestore"
	indexingapp "github.com/jinford/book-rag/internal/module/indexing/application"
	llmadapter "github.com/jinford/book-rag/internal/module/llm/adapter"
	llmdomain "github.com/jinford/book-rag/internal/module/llm/domain"
	searchapp "github.com/jinford/book-rag/internal/module/search/application"
	"github.com/jinford/book-rag/internal/platform/config"
	"github.com/jinford/book-rag/internal/platform/logger"
)

// Container はアプリケーション全体の依存関係を保持する
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Catalog  bookdomain.Catalog
	Store    *filestore.Store
	Embedder llmdomain.Embedder
	LLM      llmdomain.Client

	IndexService *indexingapp.IndexService
	Registry     *searchapp.IndexRegistry
	Retriever    *searchapp.HybridRetriever
	AskService   *askapp.AskService

	watcher *filestore.Watcher
}

type containerOptions struct {
	embedder  llmdomain.Embedder
	llmClient llmdomain.Client
}

// Option は Container 構築時のオプション
type Option func(*containerOptions)

// WithEmbedder はカスタム Embedder を注入する
func WithEmbedder(embedder llmdomain.Embedder) Option {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithLLMClient は回答生成クライアントを差し替える
func WithLLMClient(client llmdomain.Client) Option {
	return func(opts *containerOptions) {
		opts.llmClient = client
	}
}

// New は設定から依存関係を組み立てる
func New(log *slog.Logger, cfg *config.Config, opts ...Option) (*Container, error) {
	if log == nil {
		log = slog.Default()
	}

	o := containerOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	embedder := o.embedder
	if embedder == nil {
		e, err := llmadapter.NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbeddingDimension,
			llmadapter.WithBaseURL(cfg.OpenAI.BaseURL),
			llmadapter.WithTimeout(cfg.OpenAI.RequestTimeout),
			llmadapter.WithMaxRetries(cfg.OpenAI.MaxRetries),
			llmadapter.WithBaseBackoff(cfg.OpenAI.RetryBackoff),
		)
		if err != nil {
			return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
		}
		embedder = e
	}

	llmClient := o.llmClient
	if llmClient == nil {
		// 回答生成は1回だけ呼び出す
		c, err := llmadapter.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.LLMModel,
			llmadapter.WithBaseURL(cfg.OpenAI.BaseURL),
			llmadapter.WithTimeout(cfg.OpenAI.RequestTimeout),
			llmadapter.WithMaxRetries(0),
		)
		if err != nil {
			return nil, fmt.Errorf("LLMクライアント初期化に失敗しました: %w", err)
		}
		llmClient = c
	}

	tokenizer, err := chunker.NewTokenizer(cfg.Chunking.Encoding)
	if err != nil {
		return nil, fmt.Errorf("Tokenizer 初期化に失敗しました: %w", err)
	}
	textChunker, err := chunker.New(tokenizer, cfg.Chunking.Size, cfg.Chunking.Overlap,
		chunker.WithLogger(logger.Component(log, "chunker")))
	if err != nil {
		return nil, fmt.Errorf("Chunker 初期化に失敗しました: %w", err)
	}

	store := filestore.New(cfg.IndexDir, filestore.WithLogger(logger.Component(log, "filestore")))

	builder := indexingapp.NewIndexBuilder(embedder,
		indexingapp.WithBatchSize(cfg.Embedding.BatchSize),
		indexingapp.WithConcurrency(cfg.Embedding.Concurrency),
		indexingapp.WithRateLimit(cfg.Embedding.RPS),
		indexingapp.WithBuilderLogger(logger.Component(log, "index_builder")),
	)
	indexService := indexingapp.NewIndexService(
		epub.NewExtractor(epub.WithLogger(logger.Component(log, "epub"))),
		textChunker,
		builder,
		store,
		filestore.NewLockManager(cfg.IndexDir),
		logger.Component(log, "indexing"),
	)

	registry := searchapp.NewIndexRegistry(cfg.Books, store,
		searchapp.WithRegistryLogger(logger.Component(log, "registry")))
	retriever := searchapp.NewHybridRetriever(registry, embedder,
		searchapp.WithRetrieverLogger(logger.Component(log, "retriever")))

	generator := askapp.NewAnswerGenerator(llmClient,
		askapp.WithTemperature(cfg.OpenAI.Temperature),
		askapp.WithGenerateTimeout(cfg.OpenAI.RequestTimeout),
		askapp.WithVerifyTimeout(cfg.OpenAI.VerifyTimeout),
		askapp.WithGeneratorLogger(logger.Component(log, "generator")),
	)
	askService := askapp.NewAskService(retriever, generator,
		askapp.WithAskLogger(logger.Component(log, "ask")))

	return &Container{
		Config:       cfg,
		Logger:       log,
		Catalog:      cfg.Books,
		Store:        store,
		Embedder:     embedder,
		LLM:          llmClient,
		IndexService: indexService,
		Registry:     registry,
		Retriever:    retriever,
		AskService:   askService,
	}, nil
}

// StartWatcher はインデックスの差し替えを監視し、検知した書籍のキャッシュを破棄する
func (c *Container) StartWatcher(ctx context.Context) error {
	if c.watcher != nil {
		return nil
	}
	if err := os.MkdirAll(c.Store.Root(), 0o755); err != nil {
		return fmt.Errorf("インデックスディレクトリの作成に失敗しました: %w", err)
	}
	w := filestore.NewWatcher(c.Store.Root(), c.Catalog.Books(), c.Registry.Invalidate, logger.Component(c.Logger, "watcher"))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("インデックス監視の開始に失敗しました: %w", err)
	}
	c.watcher = w
	return nil
}

// IndexParams は CLI 引数から取り込みパラメータを組み立てる
func (c *Container) IndexParams(bookID bookdomain.BookID, epubPath, pdfPath string, pages int) (indexingapp.IndexParams, error) {
	book, err := c.Catalog.Lookup(bookID)
	if err != nil {
		return indexingapp.IndexParams{}, err
	}
	if pdfPath == "" && pages > 0 {
		pdfPath = book.PDFPath
	}
	return indexingapp.IndexParams{
		Book:     book,
		EPUBPath: epubPath,
		PDFPath:  pdfPath,
		Pages:    pages,
	}, nil
}

// Close はコンテナが保持するリソースを解放する
func (c *Container) Close() {
	if c.watcher != nil {
		if err := c.watcher.Close(); err != nil {
			c.Logger.Warn("インデックス監視の停止に失敗しました", "error", err)
		}
		c.watcher = nil
	}
	if c.Registry != nil {
		c.Registry.Close()
	}
}
