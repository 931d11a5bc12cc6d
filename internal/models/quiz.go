package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	FillInTheBlank QuestionType = "fill_in_the_blank"
	FreeResponse   QuestionType = "free_response"
)

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, FillInTheBlank, FreeResponse:
		return true
	}
	return false
}

// AnswerInfo is the stored correct answer: an option index, a string, or
// nothing (free response). It round-trips through JSON as a number, a string
// or null.
type AnswerInfo struct {
	Index *int
	Text  *string
}

func IndexAnswer(i int) *AnswerInfo { return &AnswerInfo{Index: &i} }
func TextAnswer(s string) *AnswerInfo { return &AnswerInfo{Text: &s} }
func (a *AnswerInfo) IsZero() bool { return a == nil || (a.Index == nil && a.Text == nil) }

func (a AnswerInfo) MarshalJSON() ([]byte, error) {
	switch {
	case a.Index != nil:
		return json.Marshal(*a.Index)
	case a.Text != nil:
		return json.Marshal(*a.Text)
	default:
		return []byte("null"), nil
	}
}

func (a *AnswerInfo) UnmarshalJSON(data []byte) error {
	a.Index, a.Text = nil, nil
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		a.Text = &s
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("answer info must be an integer, string or null: %w", err)
	}
	a.Index = &i
	return nil
}

// Question is one item of a test. AnswerInfo holds the resolved option index
// for multiple choice and the expected text for fill-in-the-blank.
type Question struct {
	ID              uuid.UUID    `json:"id"`
	TestID          uuid.UUID    `json:"test_id"`
	Index           int          `json:"index"`
	Type            QuestionType `json:"type"`
	Text            string       `json:"text"`
	Options         []string     `json:"options,omitempty"`
	AnswerInfo      *AnswerInfo  `json:"answer_info"`
	SuggestedAnswer *string      `json:"suggested_answer,omitempty"`
	Hint            *string      `json:"hint,omitempty"`
}

// Public strips everything that would reveal the answer.
func (q *Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:      q.ID,
		Index:   q.Index,
		Type:    q.Type,
		Text:    q.Text,
		Options: q.Options,
		HasHint: q.Hint != nil,
	}
}

type PublicQuestion struct {
	ID      uuid.UUID    `json:"id"`
	Index   int          `json:"index"`
	Type    QuestionType `json:"type"`
	Text    string       `json:"text"`
	Options []string     `json:"options,omitempty"`
	HasHint bool         `json:"has_hint"`
}

type TestDefinition struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Title         string     `json:"title"`
	SourceSnippet string     `json:"source_snippet"`
	CreatedAt     time.Time  `json:"created_at"`
	Questions     []Question `json:"questions,omitempty"`
}

// TestSummary is a dashboard row.
type TestSummary struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	SourceSnippet    string    `json:"source_snippet"`
	CreatedAt        time.Time `json:"created_at"`
	QuestionCount    int       `json:"question_count"`
	AttemptCount     int       `json:"attempt_count"`
	BestScore        *float64  `json:"best_score"`
	MaxPossibleScore float64   `json:"max_possible_score"`
}

type GenerateTestRequest struct {
	Title         string   `json:"title"`
	Text          string   `json:"text"`
	NumQuestions  int      `json:"num_questions"`
	QuestionTypes []string `json:"question_types"`
}

type GenerateTestResponse struct {
	JobID uuid.UUID `json:"job_id"`
}
