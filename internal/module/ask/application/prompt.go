package application

import (
	"encoding/json"
	"fmt"

	searchdomain "github.com/jinford/book-rag/internal/module/search/domain"
)

const (
	qaSystemPrompt = "You answer questions about a single book. " +
		"Use only the passages in ground_truth_passages. " +
		"If the passages do not contain the answer, say that the book does not cover it."

	verifySystemPrompt = "You check whether an answer is supported by the given passages. " +
		"Reply with yes if every claim in the answer is supported, otherwise reply with no."
)

type qaPayload struct {
	Task                string   `json:"task"`
	GroundTruthPassages []string `json:"ground_truth_passages"`
	Question            string   `json:"question"`
}

type verifyPayload struct {
	Task                string   `json:"task"`
	Answer              string   `json:"answer"`
	GroundTruthPassages []string `json:"ground_truth_passages"`
}

// BuildQAPrompt は回答生成用のユーザーメッセージを構築する
func BuildQAPrompt(question string, candidates []searchdomain.Candidate) (string, error) {
	return marshalPayload(qaPayload{
		Task:                "qa",
		GroundTruthPassages: passageTexts(candidates),
		Question:            question,
	})
}

// BuildVerifyPrompt は回答確認用のユーザーメッセージを構築する
func BuildVerifyPrompt(answer string, candidates []searchdomain.Candidate) (string, error) {
	return marshalPayload(verifyPayload{
		Task:                "verify",
		Answer:              answer,
		GroundTruthPassages: passageTexts(candidates),
	})
}

func passageTexts(candidates []searchdomain.Candidate) []string {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	return texts
}

func marshalPayload(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt: %w", err)
	}
	return string(b), nil
}
