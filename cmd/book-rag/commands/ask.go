package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	askdomain "github.com/jinford/book-rag/internal/module/ask/domain"
	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
)

// AskAction は書籍に質問して回答を表示するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	bookID, err := bookdomain.ParseBookID(cmd.String("book"))
	if err != nil {
		return err
	}
	question := cmd.String("question")
	if strings.TrimSpace(question) == "" {
		return bookdomain.ErrEmptyQuestion
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.AskService.Ask(ctx, askdomain.AskParams{
		Question: question,
		BookID:   bookID,
		Verify:   cmd.Bool("verify"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return writeAskJSON(os.Stdout, result)
	}
	renderAnswer(os.Stdout, result)
	return nil
}

// renderAnswer は回答と根拠パッセージを表示します
func renderAnswer(w io.Writer, result *askdomain.AskResult) {
	fmt.Fprintf(w, "\n=== 回答 ===\n%s\n", result.Answer)
	if result.Verified != nil {
		fmt.Fprintf(w, "\n裏付け確認: %t\n", *result.Verified)
	}

	if len(result.Sources) > 0 {
		fmt.Fprintln(w, "\n=== 根拠パッセージ ===")
		table := tablewriter.NewWriter(w)
		table.Header("順位", "章", "部", "推定ページ", "本文")
		for _, s := range result.Sources {
			part := ""
			if s.Metadata.Part != nil {
				part = *s.Metadata.Part
			}
			table.Append(
				fmt.Sprintf("%d", s.Rank),
				s.Metadata.Chapter,
				part,
				fmt.Sprintf("%d", s.Metadata.PDFPage),
				truncate(s.Content, 80),
			)
		}
		table.Render()
	}

	fmt.Fprintf(w, "\n処理時間: %.2fs\n", result.ProcessingTime.Seconds())
}

type askOutput struct {
	Answer         string                      `json:"answer"`
	Sources        []askdomain.SourceReference `json:"sources"`
	ProcessingTime float64                     `json:"processing_time"`
	Verified       *bool                       `json:"verified,omitempty"`
}

func writeAskJSON(w io.Writer, result *askdomain.AskResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(askOutput{
		Answer:         result.Answer,
		Sources:        result.Sources,
		ProcessingTime: result.ProcessingTime.Seconds(),
		Verified:       result.Verified,
	})
}

// truncate は表示用に rune 単位で切り詰める
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
