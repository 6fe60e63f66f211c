package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookdomain "github.com/jinford/book-rag/internal/module/book/domain"
	llmdomain "github.com/jinford/book-rag/internal/module/llm/domain"
	llmtesting "github.com/jinford/book-rag/internal/module/llm/testing"
	searchtesting "github.com/jinford/book-rag/internal/module/search/testing"
)

func TestBuildQAPrompt(t *testing.T) {
	candidates := searchtesting.Candidates(bookdomain.BookDebtCrisis, "first passage", "second “quoted” passage")

	prompt, err := BuildQAPrompt("What is deleveraging?", candidates)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(prompt), &payload))
	assert.Equal(t, "qa", payload["task"])
	assert.Equal(t, "What is deleveraging?", payload["question"])
	assert.Equal(t, []any{"first passage", "second “quoted” passage"}, payload["ground_truth_passages"])
}

func TestBuildVerifyPrompt(t *testing.T) {
	prompt, err := BuildVerifyPrompt("an answer", searchtesting.Candidates(bookdomain.BookCapitalism, "p"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"task":"verify","answer":"an answer","ground_truth_passages":["p"]}`, prompt)
}

func TestAnswerGenerator_Generate(t *testing.T) {
	client := &llmtesting.FakeClient{
		GenerateCompletionFunc: func(ctx context.Context, req llmdomain.CompletionRequest) (llmdomain.CompletionResponse, error) {
			return llmdomain.CompletionResponse{Content: "  Debt is serviced by income.\n"}, nil
		},
	}
	gen := NewAnswerGenerator(client, WithGeneratorModel("gpt-test"), WithTemperature(0.2))

	answer, err := gen.Generate(context.Background(), "q", searchtesting.Candidates(bookdomain.BookDebtCrisis, "p1"))
	require.NoError(t, err)
	assert.Equal(t, "Debt is serviced by income.", answer)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, qaSystemPrompt, reqs[0].System)
	assert.Equal(t, "gpt-test", reqs[0].Model)
	assert.InDelta(t, 0.2, reqs[0].Temperature, 1e-9)
	assert.Contains(t, reqs[0].Prompt, `"task":"qa"`)
}

func TestAnswerGenerator_GenerateFailureIsSingleAttempt(t *testing.T) {
	client := &llmtesting.FakeClient{
		GenerateCompletionFunc: func(ctx context.Context, req llmdomain.CompletionRequest) (llmdomain.CompletionResponse, error) {
			return llmdomain.CompletionResponse{}, errors.New("503 from upstream")
		},
	}
	gen := NewAnswerGenerator(client)

	_, err := gen.Generate(context.Background(), "q", nil)
	assert.ErrorIs(t, err, bookdomain.ErrGeneration)
	assert.Len(t, client.Requests(), 1)
}

func TestAnswerGenerator_GenerateEmptyAnswer(t *testing.T) {
	client := &llmtesting.FakeClient{
		GenerateCompletionFunc: func(ctx context.Context, req llmdomain.CompletionRequest) (llmdomain.CompletionResponse, error) {
			return llmdomain.CompletionResponse{Content: "   "}, nil
		},
	}

	_, err := NewAnswerGenerator(client).Generate(context.Background(), "q", nil)
	assert.ErrorIs(t, err, bookdomain.ErrGeneration)
	assert.ErrorIs(t, err, llmdomain.ErrEmptyResponse)
}

func TestAnswerGenerator_GenerateIgnoresCallerCancellation(t *testing.T) {
	client := &llmtesting.FakeClient{
		GenerateCompletionFunc: func(ctx context.Context, req llmdomain.CompletionRequest) (llmdomain.CompletionResponse, error) {
			if err := ctx.Err(); err != nil {
				return llmdomain.CompletionResponse{}, err
			}
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return llmdomain.CompletionResponse{Content: "still answered"}, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answer, err := NewAnswerGenerator(client).Generate(ctx, "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "still answered", answer)
}

func TestAnswerGenerator_GenerateTimeout(t *testing.T) {
	client := &llmtesting.FakeClient{
		GenerateCompletionFunc: func(ctx context.Context, req llmdomain.CompletionRequest) (llmdomain.CompletionResponse, error) {
			<-ctx.Done()
			return llmdomain.CompletionResponse{}, ctx.Err()
		},
	}
	gen := NewAnswerGenerator(client, WithGenerateTimeout(20*time.Millisecond))

	_, err := gen.Generate(context.Background(), "q", nil)
	assert.ErrorIs(t, err, bookdomain.ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAnswerGenerator_Verify(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  bool
	}{
		{name: "yes", reply: "Yes.", want: true},
		{name: "yes inside sentence", reply: "The answer is supported: YES", want: true},
		{name: "no", reply: "No, the second claim is missing.", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &llmtesting.FakeClient{
				GenerateCompletionFunc: func(ctx context.Context, req llmdomain.CompletionRequest) (llmdomain.CompletionResponse, error) {
					assert.Equal(t, verifySystemPrompt, req.System)
					return llmdomain.CompletionResponse{Content: tt.reply}, nil
				},
			}
			ok, err := NewAnswerGenerator(client).Verify(context.Background(), "a", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestAnswerGenerator_VerifyTimeout(t *testing.T) {
	client := &llmtesting.FakeClient{
		GenerateCompletionFunc: func(ctx context.Context, req llmdomain.CompletionRequest) (llmdomain.CompletionResponse, error) {
			<-ctx.Done()
			return llmdomain.CompletionResponse{}, ctx.Err()
		},
	}
	gen := NewAnswerGenerator(client, WithVerifyTimeout(10*time.Millisecond))

	_, err := gen.Verify(context.Background(), "a", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
