package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/samber/lo"
)

// RawQuestion is one unparsed item of a generated question set.
type RawQuestion = map[string]any

var AllQuestionTypes = []string{"multiple_choice", "fill_in_the_blank", "free_response"}

// Generator runs the study-material prompts against a Client.
type Generator struct {
	client      *Client
	maxAttempts int
}

func NewGenerator(client *Client, maxAttempts int) *Generator {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Generator{client: client, maxAttempts: maxAttempts}
}

func (g *Generator) Close() error {
	return g.client.Close()
}

// GenerateQuestionSet asks for count questions of the given types and returns
// the raw items. Unknown type names are dropped; none left means all types.
func (g *Generator) GenerateQuestionSet(ctx context.Context, text string, count int, types []string) ([]RawQuestion, error) {
	types = lo.Uniq(lo.Filter(types, func(t string, _ int) bool {
		return lo.Contains(AllQuestionTypes, t)
	}))
	if len(types) == 0 {
		types = AllQuestionTypes
	}

	conversation := []Message{
		{Role: RoleSystem, Content: questionSystemPrompt},
		{Role: RoleUser, Content: buildQuestionSetPrompt(text, count, types)},
	}

	content, err := g.client.Call(ctx, conversation, ValidateQuestionSet, true, g.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	var payload struct {
		Questions []RawQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(StripCodeFence(content)), &payload); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	log.Printf("Model returned %d candidate questions", len(payload.Questions))
	return payload.Questions, nil
}

func (g *Generator) GenerateHint(ctx context.Context, questionText, contextText string) (string, error) {
	conversation := []Message{
		{Role: RoleSystem, Content: hintSystemPrompt},
		{Role: RoleUser, Content: buildHintPrompt(questionText, contextText)},
	}

	hint, err := g.client.Call(ctx, conversation, nil, false, g.maxAttempts)
	if err != nil {
		return "", fmt.Errorf("generate hint: %w", err)
	}
	return strings.TrimSpace(hint), nil
}

// GenerateExplanation explains the correct answer. The user's answer and its
// correctness are only mentioned when both are known.
func (g *Generator) GenerateExplanation(ctx context.Context, questionText, correctDisplay string, userAnswer *string, isCorrect *bool) (string, error) {
	conversation := []Message{
		{Role: RoleSystem, Content: explanationSystemPrompt},
		{Role: RoleUser, Content: buildExplanationPrompt(questionText, correctDisplay, userAnswer, isCorrect)},
	}

	explanation, err := g.client.Call(ctx, conversation, nil, false, g.maxAttempts)
	if err != nil {
		return "", fmt.Errorf("generate explanation: %w", err)
	}
	return stripWrappingQuotes(strings.TrimSpace(explanation)), nil
}

func (g *Generator) GenerateCSSTheme(ctx context.Context, description string) (string, error) {
	conversation := []Message{
		{Role: RoleSystem, Content: cssSystemPrompt},
		{Role: RoleUser, Content: buildCSSPrompt(description)},
	}

	css, err := g.client.Call(ctx, conversation, ValidateCSS, false, g.maxAttempts)
	if err != nil {
		return "", fmt.Errorf("generate theme: %w", err)
	}
	return CleanCSS(css), nil
}

// GradeFreeResponse scores an answer against the suggested one. Any failure
// is logged and reported as a 0.0 score with ok=false.
func (g *Generator) GradeFreeResponse(ctx context.Context, questionText, suggested, userAnswer string) (float64, bool) {
	conversation := []Message{
		{Role: RoleSystem, Content: gradeSystemPrompt},
		{Role: RoleUser, Content: buildGradePrompt(questionText, suggested, userAnswer)},
	}

	content, err := g.client.Call(ctx, conversation, ValidateScore, true, g.maxAttempts)
	if err != nil {
		log.Printf("Free response grading failed: %v", err)
		return 0.0, false
	}

	var payload struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(StripCodeFence(content)), &payload); err != nil {
		log.Printf("Free response grading returned unreadable score: %v", err)
		return 0.0, false
	}
	return payload.Score, true
}

func stripWrappingQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
