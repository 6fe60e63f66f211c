package container

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	askdomain "github.com/jinford/book-rag/internal/module/ask/domain"
	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	testutil "github.com/jinford/book-rag/internal/module/indexing/testing"
	llmdomain "github.com/jinford/book-rag/internal/module/llm/domain"
	llmtesting "github.com/jinford/book-rag/internal/module/llm/testing"
	"github.com/jinford/book-rag/internal/platform/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		IndexDir: t.TempDir(),
		Books:    bookdomain.DefaultCatalog(),
		OpenAI: config.OpenAIConfig{
			RequestTimeout: 5 * time.Second,
			VerifyTimeout:  time.Second,
		},
		Chunking:  config.ChunkingConfig{Size: 40, Overlap: 5, Encoding: "words"},
		Embedding: config.EmbeddingConfig{BatchSize: 8, Concurrency: 2},
		Server:    config.ServerConfig{Port: 8000},
	}
}

func newTestContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(log, cfg, WithEmbedder(&llmtesting.HashEmbedder{}), WithLLMClient(&llmtesting.FakeClient{}))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func writeEPUB(t *testing.T) string {
	t.Helper()
	data, err := testutil.BuildEPUB([]testutil.Document{
		{Name: "ch1.xhtml", Body: testutil.Paragraphs(
			"A debt crisis happens when debt service costs rise faster than incomes.",
			"Deleveraging is the process of reducing debt burdens relative to incomes.",
		)},
		{Name: "ch2.xhtml", Body: testutil.Paragraphs(
			"Central banks respond to a depression by printing money and buying assets.",
		)},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "book.epub")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestContainer_IngestThenAsk(t *testing.T) {
	c := newTestContainer(t, testConfig(t))
	ctx := context.Background()

	_, err := c.AskService.Ask(ctx, askdomain.AskParams{Question: "What is deleveraging?", BookID: bookdomain.BookDebtCrisis})
	require.ErrorIs(t, err, bookdomain.ErrIndexNotLoaded)

	params, err := c.IndexParams(bookdomain.BookDebtCrisis, writeEPUB(t), "", 0)
	require.NoError(t, err)
	result, err := c.IndexService.IndexBook(ctx, params)
	require.NoError(t, err)
	assert.Positive(t, result.Chunks)
	assert.True(t, c.Store.Exists(params.Book))

	answer, err := c.AskService.Ask(ctx, askdomain.AskParams{Question: "What is deleveraging?", BookID: bookdomain.BookDebtCrisis})
	require.NoError(t, err)
	assert.Equal(t, "fake answer", answer.Answer)
	require.NotEmpty(t, answer.Sources)
	assert.LessOrEqual(t, len(answer.Sources), 5)
	assert.Equal(t, []bookdomain.BookID{bookdomain.BookDebtCrisis}, c.Registry.Loaded())
}

func TestContainer_IndexParams(t *testing.T) {
	c := newTestContainer(t, testConfig(t))

	params, err := c.IndexParams(bookdomain.BookCapitalism, "", "", 300)
	require.NoError(t, err)
	assert.True(t, params.Book.StripFootnotes)
	assert.Equal(t, params.Book.PDFPath, params.PDFPath)
	assert.Equal(t, 300, params.Pages)

	_, err = c.IndexParams(bookdomain.BookID(7), "", "", 0)
	assert.ErrorIs(t, err, bookdomain.ErrInvalidBook)
}

func TestContainer_WatcherInvalidatesRegistry(t *testing.T) {
	cfg := testConfig(t)
	c := newTestContainer(t, cfg)
	ctx := context.Background()

	params, err := c.IndexParams(bookdomain.BookDebtCrisis, writeEPUB(t), "", 0)
	require.NoError(t, err)
	_, err = c.IndexService.IndexBook(ctx, params)
	require.NoError(t, err)

	require.NoError(t, c.StartWatcher(ctx))
	c.Registry.Preload(ctx, bookdomain.BookDebtCrisis)
	require.Len(t, c.Registry.Loaded(), 1)

	// 別プロセスによる再取り込みを想定
	_, err = c.IndexService.IndexBook(ctx, params)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(c.Registry.Loaded()) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(nil, testConfig(t))
	assert.ErrorIs(t, err, llmdomain.ErrAPIKeyNotSet)
}
