package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	askdomain "github.com/jinford/book-rag/internal/module/ask/domain"
	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// Asker は質問応答サービス
type Asker interface {
	Ask(ctx context.Context, params askdomain.AskParams) (*askdomain.AskResult, error)
}

// LoadedIndexes はメモリ上に読み込み済みの書籍を返す
type LoadedIndexes interface {
	Loaded() []bookdomain.BookID
}

// IndexChecker は書籍のインデックスが永続化済みかを返す
type IndexChecker interface {
	Exists(book bookdomain.Book) bool
}

// Handler は HTTP API のハンドラ
type Handler struct {
	asker          Asker
	loaded         LoadedIndexes
	indexes        IndexChecker
	catalog        bookdomain.Catalog
	embeddingModel string
	logger         *slog.Logger
}

// NewHandler は Handler を作成します
// embeddingModel が空の場合、/health の embeddings_model_loaded は false になる
func NewHandler(asker Asker, loaded LoadedIndexes, indexes IndexChecker, catalog bookdomain.Catalog, embeddingModel string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		asker:          asker,
		loaded:         loaded,
		indexes:        indexes,
		catalog:        catalog,
		embeddingModel: embeddingModel,
		logger:         logger,
	}
}

// Routes はルートと /api 配下の両方にエンドポイントを登録した http.Handler を返す
func (h *Handler) Routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /ask", h.handleAsk)
	api.HandleFunc("GET /health", h.handleHealth)
	api.HandleFunc("GET /books", h.handleBooks)

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("/", api)

	return recoverer(h.logger, requestLogger(h.logger, root))
}

type askRequest struct {
	Question string `json:"question"`
	BookID   string `json:"book_id"`
	Verify   bool   `json:"verify,omitempty"`
}

type sourceResponse struct {
	Content  string                   `json:"content"`
	Metadata bookdomain.ChunkMetadata `json:"metadata"`
	Rank     int                      `json:"rank"`
}

type askResponse struct {
	Answer         string           `json:"answer"`
	Sources        []sourceResponse `json:"sources"`
	ProcessingTime float64          `json:"processing_time"`
	Status         string           `json:"status"`
	Verified       *bool            `json:"verified,omitempty"`
	Detail         string           `json:"detail,omitempty"`
}

type healthResponse struct {
	Status                string   `json:"status"`
	VectorStoresLoaded    []string `json:"vector_stores_loaded"`
	EmbeddingsModelLoaded bool     `json:"embeddings_model_loaded"`
}

type bookResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Indexed     bool   `json:"indexed"`
}

type booksResponse struct {
	Books []bookResponse `json:"books"`
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeAskError(w, http.StatusBadRequest, "invalid request body", start)
		return
	}

	bookID, err := bookdomain.ParseBookID(req.BookID)
	if err != nil {
		h.writeAskError(w, http.StatusBadRequest, "Invalid book_id", start)
		return
	}

	result, err := h.asker.Ask(r.Context(), askdomain.AskParams{
		Question: req.Question,
		BookID:   bookID,
		Verify:   req.Verify,
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("ask failed", "book", bookID, "status", status, "error", err)
		}
		h.writeAskError(w, status, detailFor(err, bookID), start)
		return
	}

	sources := make([]sourceResponse, len(result.Sources))
	for i, s := range result.Sources {
		sources[i] = sourceResponse{Content: s.Content, Metadata: s.Metadata, Rank: s.Rank}
	}

	writeJSON(w, http.StatusOK, askResponse{
		Answer:         result.Answer,
		Sources:        sources,
		ProcessingTime: time.Since(start).Seconds(),
		Status:         "success",
		Verified:       result.Verified,
	})
}

func (h *Handler) writeAskError(w http.ResponseWriter, status int, detail string, start time.Time) {
	writeJSON(w, status, askResponse{
		Answer:         "",
		Sources:        []sourceResponse{},
		ProcessingTime: time.Since(start).Seconds(),
		Status:         "error",
		Detail:         detail,
	})
}

// statusFor はエラー分類を HTTP ステータスに変換する
func statusFor(err error) int {
	switch {
	case errors.Is(err, bookdomain.ErrInvalidBook), errors.Is(err, bookdomain.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, bookdomain.ErrIndexNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, bookdomain.ErrGeneration), errors.Is(err, bookdomain.ErrEmbeddingService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func detailFor(err error, bookID bookdomain.BookID) string {
	switch {
	case errors.Is(err, bookdomain.ErrInvalidBook):
		return "Invalid book_id"
	case errors.Is(err, bookdomain.ErrEmptyQuestion):
		return "question is required"
	case errors.Is(err, bookdomain.ErrIndexNotLoaded):
		return "Vector store for " + bookID.String() + " not loaded"
	case errors.Is(err, bookdomain.ErrGeneration):
		return "answer generation failed"
	case errors.Is(err, bookdomain.ErrEmbeddingService):
		return "embedding service unavailable"
	default:
		return "internal server error"
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	loaded := h.loaded.Loaded()
	names := make([]string, len(loaded))
	for i, id := range loaded {
		names[i] = id.String()
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:                "healthy",
		VectorStoresLoaded:    names,
		EmbeddingsModelLoaded: h.embeddingModel != "",
	})
}

func (h *Handler) handleBooks(w http.ResponseWriter, _ *http.Request) {
	books := h.catalog.Books()
	resp := booksResponse{Books: make([]bookResponse, len(books))}
	for i, b := range books {
		resp.Books[i] = bookResponse{
			ID:          b.ID.String(),
			Name:        b.Title,
			Description: b.Description,
			Indexed:     h.indexes.Exists(b),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
