package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// IndexDir は書籍インデックスの格納ルート
	IndexDir string

	// BooksConfig は書籍カタログの上書きファイル（YAML、空の場合は組み込みカタログのみ）
	BooksConfig string

	// Books は上書き適用後の書籍カタログ
	Books bookdomain.Catalog

	// OpenAI設定（Embeddings + 回答生成）
	OpenAI OpenAIConfig

	// Chunking設定
	Chunking ChunkingConfig

	// Embedding設定（インデックス構築時）
	Embedding EmbeddingConfig

	// Server設定
	Server ServerConfig

	// Log設定
	Log LogConfig
}

// OpenAIConfig はOpenAI互換API設定
type OpenAIConfig struct {
	APIKey string
	// BaseURL は OpenAI 互換エンドポイント（空の場合は OpenAI）
	BaseURL            string
	EmbeddingModel     string
	EmbeddingDimension int    // 0 の場合はモデルの既定次元
	LLMModel           string // 回答生成モデル
	Temperature        float64
	RequestTimeout     time.Duration
	VerifyTimeout      time.Duration
	MaxRetries         int           // Embedding の一時的エラー時のリトライ回数
	RetryBackoff       time.Duration // リトライ間隔の基底時間
}

// ChunkingConfig はチャンク分割設定
type ChunkingConfig struct {
	Size     int
	Overlap  int
	Encoding string // tiktoken のエンコーディング名、または "words"
}

// EmbeddingConfig はインデックス構築時の Embedding 呼び出し設定
type EmbeddingConfig struct {
	BatchSize   int
	Concurrency int
	RPS         float64 // 0 以下で無制限
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	// Watch が true の場合、インデックスの差し替えを検知して再読み込みする
	Watch bool
}

// LogConfig はロガー設定
type LogConfig struct {
	Level  slog.Level
	Format string // "json" or "text"
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		IndexDir:    getEnv("INDEX_DIR", "vector_store"),
		BooksConfig: getEnv("BOOKS_CONFIG", ""),
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			BaseURL:            getEnv("OPENAI_BASE_URL", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 0),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
			Temperature:        getEnvAsFloat("OPENAI_LLM_TEMPERATURE", 0),
			RequestTimeout:     getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
			VerifyTimeout:      getEnvAsDuration("VERIFY_TIMEOUT", 20*time.Second),
			MaxRetries:         getEnvAsInt("EMBEDDING_MAX_RETRIES", 3),
			RetryBackoff:       getEnvAsDuration("EMBEDDING_RETRY_BACKOFF", 2*time.Second),
		},
		Chunking: ChunkingConfig{
			Size:     getEnvAsInt("CHUNK_SIZE", 220),
			Overlap:  getEnvAsInt("CHUNK_OVERLAP", 15),
			Encoding: getEnv("TOKENIZER_ENCODING", "cl100k_base"),
		},
		Embedding: EmbeddingConfig{
			BatchSize:   getEnvAsInt("EMBEDDING_BATCH_SIZE", 100),
			Concurrency: getEnvAsInt("EMBEDDING_CONCURRENCY", 4),
			RPS:         getEnvAsFloat("EMBEDDING_RPS", 0),
		},
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 8000),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			Watch:           getEnvAsBool("WATCH_INDEX", false),
		},
		Log: LogConfig{
			Level:  parseLevel(getEnv("LOG_LEVEL", "info")),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	books, err := LoadBooks(cfg.BooksConfig)
	if err != nil {
		return nil, err
	}
	cfg.Books = books

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive: %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE): %d", c.Chunking.Overlap)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Server.Port)
	}
	if c.IndexDir == "" {
		return fmt.Errorf("INDEX_DIR is required")
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（"30s" 形式、または秒数）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
