package domain

import (
	"fmt"
	"strings"
)

// BookID は対象書籍を識別する閉じた列挙型
// ゼロ値は無効な書籍として扱う
type BookID int

const (
	bookUnknown BookID = iota
	// BookDebtCrisis は Ray Dalio "Big Debt Crises"
	BookDebtCrisis
	// BookCapitalism は Rajan & Zingales "Saving Capitalism from the Capitalists"
	BookCapitalism
)

// AllBooks は定義済みの全書籍を返す
func AllBooks() []BookID {
	return []BookID{BookDebtCrisis, BookCapitalism}
}

// String は API・メタデータで用いる識別子文字列を返す
func (b BookID) String() string {
	switch b {
	case BookDebtCrisis:
		return "debt_crisis"
	case BookCapitalism:
		return "capitalism"
	default:
		return fmt.Sprintf("BookID(%d)", int(b))
	}
}

// Valid は列挙値のいずれかであるかを判定する
func (b BookID) Valid() bool {
	switch b {
	case BookDebtCrisis, BookCapitalism:
		return true
	default:
		return false
	}
}

// ParseBookID は外部から受け取った文字列を BookID に変換する
// 未定義の値は ErrInvalidBook を返す
func ParseBookID(s string) (BookID, error) {
	switch strings.TrimSpace(s) {
	case "debt_crisis":
		return BookDebtCrisis, nil
	case "capitalism":
		return BookCapitalism, nil
	default:
		return bookUnknown, fmt.Errorf("%w: %q (expected one of debt_crisis, capitalism)", ErrInvalidBook, s)
	}
}

// MarshalText は BookID を JSON/YAML のキー・値として書き出す
func (b BookID) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBook, b)
	}
	return []byte(b.String()), nil
}

// UnmarshalText は文字列から BookID を復元する
func (b *BookID) UnmarshalText(text []byte) error {
	id, err := ParseBookID(string(text))
	if err != nil {
		return err
	}
	*b = id
	return nil
}

// Book は書籍カタログの1エントリ
type Book struct {
	ID          BookID
	Title       string
	Description string

	// IndexDir はインデックス格納ディレクトリ名（INDEX_DIR 配下）
	IndexDir string

	// EPUBPath / PDFPath は ingest 時に引数省略された場合の既定パス
	EPUBPath string
	PDFPath  string

	// StripFootnotes が true の場合、抽出時に <sup> の脚注番号を除去する
	StripFootnotes bool
}

// Catalog は BookID から書籍情報を引く表
type Catalog map[BookID]Book

// Lookup は書籍情報を返す。未定義・未登録の場合は ErrInvalidBook
func (c Catalog) Lookup(id BookID) (Book, error) {
	if !id.Valid() {
		return Book{}, fmt.Errorf("%w: %s", ErrInvalidBook, id)
	}
	b, ok := c[id]
	if !ok {
		return Book{}, fmt.Errorf("%w: %s is not in the catalog", ErrInvalidBook, id)
	}
	return b, nil
}

// Books は AllBooks の順で登録済みの書籍を返す
func (c Catalog) Books() []Book {
	out := make([]Book, 0, len(c))
	for _, id := range AllBooks() {
		if b, ok := c[id]; ok {
			out = append(out, b)
		}
	}
	return out
}

// DefaultCatalog は組み込みの書籍カタログを返す
func DefaultCatalog() Catalog {
	return Catalog{
		BookDebtCrisis: {
			ID:          BookDebtCrisis,
			Title:       "Big Debt Crisis by Ray Dalio",
			Description: "Analysis of debt crises throughout history",
			IndexDir:    "big_debt_crisis",
			EPUBPath:    "data/BigDebtCrisis_RayDalio.epub",
			PDFPath:     "data/BigDebtCrisis_RayDalio.pdf",
		},
		BookCapitalism: {
			ID:             BookCapitalism,
			Title:          "Saving Capitalism from the Capitalists",
			Description:    "Analysis of financial markets and capitalism",
			IndexDir:       "saving_capitalism",
			EPUBPath:       "data/SavingCapitalismFromCapitalist_RaghuramRajan_LuigiZingales.epub",
			PDFPath:        "data/SavingCapitalismFromCapitalist_RaghuramRajan_LuigiZingales.pdf",
			StripFootnotes: true,
		},
	}
}
