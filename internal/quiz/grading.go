package quiz

import (
	"strconv"
	"strings"

	"quizforge-backend/internal/models"
)

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Grade scores a submission locally. Free response returns nil, nil: it is
// graded by the model afterwards.
func Grade(q *models.Question, userInput string) (isCorrect *bool, score *float64) {
	switch q.Type {
	case models.MultipleChoice:
		correct := false
		if selected, err := strconv.Atoi(strings.TrimSpace(userInput)); err == nil {
			if idx, ok := ResolveCorrectIndex(q.Options, q.AnswerInfo); ok {
				correct = selected == idx
			}
		}
		return result(correct)

	case models.FillInTheBlank:
		expected := ""
		if q.AnswerInfo != nil && q.AnswerInfo.Text != nil {
			expected = *q.AnswerInfo.Text
		} else if q.AnswerInfo != nil && q.AnswerInfo.Index != nil {
			expected = strconv.Itoa(*q.AnswerInfo.Index)
		}
		return result(NormalizeBlank(userInput) == NormalizeBlank(expected))

	default:
		return nil, nil
	}
}

func result(correct bool) (*bool, *float64) {
	s := 0.0
	if correct {
		s = 1.0
	}
	return &correct, &s
}

// ResolveCorrectIndex finds the correct option: an in-range index first, then
// an exact option match, then a case-insensitive match.
func ResolveCorrectIndex(options []string, info *models.AnswerInfo) (int, bool) {
	if info == nil {
		return 0, false
	}
	if info.Index != nil {
		i := *info.Index
		return i, i >= 0 && i < len(options)
	}
	if info.Text == nil {
		return 0, false
	}
	for i, opt := range options {
		if opt == *info.Text {
			return i, true
		}
	}
	for i, opt := range options {
		if strings.EqualFold(opt, *info.Text) {
			return i, true
		}
	}
	return 0, false
}

// NormalizeBlank lower-cases, drops ASCII punctuation and trims.
func NormalizeBlank(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(asciiPunctuation, r) {
			return -1
		}
		return r
	}, strings.ToLower(s))
	return strings.TrimSpace(s)
}

// CorrectAnswerDisplay renders the correct answer for explanations and
// results.
func CorrectAnswerDisplay(q *models.Question) string {
	switch q.Type {
	case models.MultipleChoice:
		if idx, ok := ResolveCorrectIndex(q.Options, q.AnswerInfo); ok {
			return q.Options[idx]
		}
		return "N/A (Invalid Info)"
	case models.FillInTheBlank:
		if q.AnswerInfo == nil || q.AnswerInfo.IsZero() {
			return "N/A"
		}
		if q.AnswerInfo.Text != nil {
			return *q.AnswerInfo.Text
		}
		return strconv.Itoa(*q.AnswerInfo.Index)
	case models.FreeResponse:
		if q.SuggestedAnswer != nil && *q.SuggestedAnswer != "" {
			return *q.SuggestedAnswer
		}
		return "No suggested answer."
	}
	return "N/A"
}
