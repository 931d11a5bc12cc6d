package quiz

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"quizforge-backend/internal/models"
)

var ErrInvalidQuestion = errors.New("invalid question")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuestion, fmt.Sprintf(format, args...))
}

// ParseQuestion builds a Question from one generated item. The type is
// matched case-insensitively and "text" is accepted as free_response.
// Multiple choice answers are stored as the resolved option index.
func ParseQuestion(raw map[string]any) (*models.Question, error) {
	typeName, _ := raw["type"].(string)
	typeName = strings.ToLower(strings.TrimSpace(typeName))

	text, _ := raw["text"].(string)
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("missing 'text'")
	}

	q := &models.Question{Text: text}

	switch typeName {
	case string(models.MultipleChoice):
		rawOptions, ok := raw["options"].([]any)
		if !ok || len(rawOptions) == 0 {
			return nil, invalid("multiple choice question needs a non-empty 'options' list")
		}
		options := lo.Map(rawOptions, func(o any, _ int) string { return scalarString(o) })

		info, err := answerInfo(raw["answer"])
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, invalid("multiple choice question missing 'answer'")
		}
		idx, ok := ResolveCorrectIndex(options, info)
		if !ok {
			return nil, invalid("answer %s does not match any option", describeAnswer(info))
		}

		q.Type = models.MultipleChoice
		q.Options = options
		q.AnswerInfo = models.IndexAnswer(idx)

	case string(models.FillInTheBlank):
		answer, present := raw["answer"]
		if !present || answer == nil {
			return nil, invalid("fill in the blank question missing 'answer'")
		}
		q.Type = models.FillInTheBlank
		q.AnswerInfo = models.TextAnswer(scalarString(answer))

	case string(models.FreeResponse), "text":
		suggested := ""
		if s, ok := raw["suggested_answer"]; ok && s != nil {
			suggested = scalarString(s)
		}
		if suggested == "" {
			if a, ok := raw["answer"]; ok && a != nil {
				suggested = scalarString(a)
			}
		}
		q.Type = models.FreeResponse
		q.SuggestedAnswer = &suggested

	default:
		return nil, invalid("unsupported question type %q", typeName)
	}

	return q, nil
}

// ParseQuestionSet parses every item independently, assigns indexes to the
// survivors and reports how many were dropped.
func ParseQuestionSet(raws []map[string]any) ([]models.Question, int) {
	questions := make([]models.Question, 0, len(raws))
	skipped := 0
	for i, raw := range raws {
		q, err := ParseQuestion(raw)
		if err != nil {
			log.Printf("Skipping generated question %d: %v", i, err)
			skipped++
			continue
		}
		q.Index = len(questions)
		questions = append(questions, *q)
	}
	return questions, skipped
}

// answerInfo accepts an integral number as an index and anything else
// scalar as text.
func answerInfo(v any) (*models.AnswerInfo, error) {
	switch a := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if a != math.Trunc(a) {
			return nil, invalid("answer index %v is not an integer", a)
		}
		return models.IndexAnswer(int(a)), nil
	case string:
		return models.TextAnswer(a), nil
	case []any, map[string]any:
		return nil, invalid("answer must be an index or option text")
	default:
		return models.TextAnswer(scalarString(a)), nil
	}
}

func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func describeAnswer(info *models.AnswerInfo) string {
	if info.Index != nil {
		return strconv.Itoa(*info.Index)
	}
	return strconv.Quote(*info.Text)
}
