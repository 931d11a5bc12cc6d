package models

import (
	"time"

	"github.com/google/uuid"
)

// Attempt is one user's pass through a test. CurrentQuestionIndex is the
// next question to answer and only ever increases.
type Attempt struct {
	ID                   uuid.UUID  `json:"id"`
	TestID               uuid.UUID  `json:"test_id"`
	UserID               uuid.UUID  `json:"user_id"`
	CurrentQuestionIndex int        `json:"current_question_index"`
	TotalScore           float64    `json:"total_score"`
	IsComplete           bool       `json:"is_complete"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at"`
}

type Answer struct {
	ID          uuid.UUID `json:"id"`
	AttemptID   uuid.UUID `json:"attempt_id"`
	QuestionID  uuid.UUID `json:"question_id"`
	UserInput   string    `json:"user_input"`
	IsCorrect   *bool     `json:"is_correct"` // nil for free response
	Score       float64   `json:"score"`
	Explanation *string   `json:"explanation"`
	CreatedAt   time.Time `json:"created_at"`
}

// AttemptView is returned when starting or resuming an attempt.
type AttemptView struct {
	Attempt          *Attempt        `json:"attempt"`
	TestTitle        string          `json:"test_title"`
	QuestionCount    int             `json:"question_count"`
	MaxPossibleScore float64         `json:"max_possible_score"`
	CurrentQuestion  *PublicQuestion `json:"current_question,omitempty"`
}

// QuestionView shows a question inside an attempt, with the answer already
// recorded for it if any.
type QuestionView struct {
	AttemptID     uuid.UUID      `json:"attempt_id"`
	Question      PublicQuestion `json:"question"`
	QuestionCount int            `json:"question_count"`
	IsLast        bool           `json:"is_last"`
	Answer        *Answer        `json:"answer,omitempty"`
}

type SubmitAnswerRequest struct {
	Answer string `json:"answer"`
}

type SubmitAnswerResponse struct {
	Answer               *Answer `json:"answer"`
	CorrectAnswer        string  `json:"correct_answer"`
	NextQuestionIndex    int     `json:"next_question_index"`
	AttemptComplete      bool    `json:"attempt_complete"`
	TotalScore           float64 `json:"total_score"`
	GradingWarning       bool    `json:"grading_warning"`
	GradingWarningDetail string  `json:"grading_warning_detail,omitempty"`
}

// ResultItem pairs a question with its correct answer and the user's answer.
type ResultItem struct {
	Question      Question `json:"question"`
	CorrectAnswer string   `json:"correct_answer"`
	Answer        *Answer  `json:"answer"`
}

type AttemptResults struct {
	Attempt          *Attempt     `json:"attempt"`
	TestTitle        string       `json:"test_title"`
	MaxPossibleScore float64      `json:"max_possible_score"`
	Items            []ResultItem `json:"items"`
	History          []*Attempt   `json:"history"`
}

type HintResponse struct {
	QuestionID uuid.UUID `json:"question_id"`
	Hint       string    `json:"hint"`
	Cached     bool      `json:"cached"`
}

type ThemeRequest struct {
	Description string `json:"description"`
}

type Theme struct {
	Description string    `json:"description"`
	CSS         string    `json:"css"`
	CreatedAt   time.Time `json:"created_at"`
}
