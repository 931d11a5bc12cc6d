package quiz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"quizforge-backend/internal/llm"
	"quizforge-backend/internal/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNoQuestions       = errors.New("test has no questions")
	ErrAttemptComplete   = errors.New("attempt is already complete")
	ErrAttemptIncomplete = errors.New("attempt is not complete yet")
	ErrOutOfOrder        = errors.New("question is not the current question")
	ErrAlreadyAnswered   = errors.New("question has already been answered in this attempt")
)

// Store is the persistence the engine needs. Lookups of missing rows return
// pgx.ErrNoRows.
type Store interface {
	GetTest(ctx context.Context, id uuid.UUID) (*models.TestDefinition, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error)
	SetQuestionHint(ctx context.Context, questionID uuid.UUID, hint string) error
	CreateAttempt(ctx context.Context, a *models.Attempt) error
	GetAttempt(ctx context.Context, id uuid.UUID) (*models.Attempt, error)
	GetAnswer(ctx context.Context, attemptID, questionID uuid.UUID) (*models.Answer, error)
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]models.Answer, error)
	// RecordAnswer inserts the answer and saves the advanced attempt in one
	// transaction. It returns ErrAlreadyAnswered or ErrOutOfOrder when a
	// concurrent submission got there first.
	RecordAnswer(ctx context.Context, attempt *models.Attempt, answer *models.Answer) error
	ListCompletedAttempts(ctx context.Context, testID, userID uuid.UUID) ([]*models.Attempt, error)
}

// Assistant is the model-backed part of grading.
type Assistant interface {
	GenerateHint(ctx context.Context, questionText, contextText string) (string, error)
	GenerateExplanation(ctx context.Context, questionText, correctDisplay string, userAnswer *string, isCorrect *bool) (string, error)
	GradeFreeResponse(ctx context.Context, questionText, suggested, userAnswer string) (float64, bool)
}

// AssistantSource builds an Assistant for the current user on demand. If the
// result implements io.Closer it is closed after use.
type AssistantSource func(ctx context.Context) (Assistant, error)

type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Submission is the outcome of a graded answer.
type Submission struct {
	Answer          *models.Answer
	Attempt         *models.Attempt
	CorrectAnswer   string
	GradingDegraded bool
	DegradedReason  string
}

func (e *Engine) StartAttempt(ctx context.Context, testID, userID uuid.UUID) (*models.Attempt, *models.TestDefinition, error) {
	test, err := e.ownedTest(ctx, testID, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(test.Questions) == 0 {
		return nil, nil, ErrNoQuestions
	}

	attempt := &models.Attempt{
		TestID:    test.ID,
		UserID:    userID,
		StartedAt: e.now(),
	}
	if err := e.store.CreateAttempt(ctx, attempt); err != nil {
		return nil, nil, fmt.Errorf("create attempt: %w", err)
	}
	log.Printf("Attempt %s started for test %s", attempt.ID, test.ID)
	return attempt, test, nil
}

// View returns the attempt with its current question, if any remain.
func (e *Engine) View(ctx context.Context, attemptID, userID uuid.UUID) (*models.AttemptView, error) {
	attempt, test, err := e.load(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}

	view := &models.AttemptView{
		Attempt:          attempt,
		TestTitle:        test.Title,
		QuestionCount:    len(test.Questions),
		MaxPossibleScore: float64(len(test.Questions)),
	}
	if !attempt.IsComplete && attempt.CurrentQuestionIndex < len(test.Questions) {
		pq := test.Questions[attempt.CurrentQuestionIndex].Public()
		view.CurrentQuestion = &pq
	}
	return view, nil
}

// QuestionAt shows question index of an attempt. Questions beyond the cursor
// are not viewable yet.
func (e *Engine) QuestionAt(ctx context.Context, attemptID, userID uuid.UUID, index int) (*models.QuestionView, error) {
	attempt, test, err := e.load(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if attempt.IsComplete {
		return nil, ErrAttemptComplete
	}
	if index < 0 || index >= len(test.Questions) {
		return nil, ErrNotFound
	}
	if index > attempt.CurrentQuestionIndex {
		return nil, ErrOutOfOrder
	}

	q := &test.Questions[index]
	view := &models.QuestionView{
		AttemptID:     attempt.ID,
		Question:      q.Public(),
		QuestionCount: len(test.Questions),
		IsLast:        index == len(test.Questions)-1,
	}

	existing, err := e.store.GetAnswer(ctx, attempt.ID, q.ID)
	switch {
	case err == nil:
		view.Answer = existing
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("load answer: %w", err)
	}
	return view, nil
}

// SubmitAnswer grades the answer to question index, records it and advances
// the attempt. The assistant is only built once the submission is accepted.
func (e *Engine) SubmitAnswer(ctx context.Context, attemptID, userID uuid.UUID, index int, input string, source AssistantSource) (*Submission, error) {
	attempt, test, err := e.load(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if attempt.IsComplete {
		return nil, ErrAttemptComplete
	}
	if index < 0 || index >= len(test.Questions) {
		return nil, ErrOutOfOrder
	}

	q := &test.Questions[index]
	if _, err := e.store.GetAnswer(ctx, attempt.ID, q.ID); err == nil {
		return nil, ErrAlreadyAnswered
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check existing answer: %w", err)
	}
	if index != attempt.CurrentQuestionIndex {
		return nil, ErrOutOfOrder
	}

	sub := &Submission{CorrectAnswer: CorrectAnswerDisplay(q)}

	var assistant Assistant
	if source != nil {
		a, err := source(ctx)
		if err != nil {
			log.Printf("Assistant unavailable for attempt %s: %v", attempt.ID, err)
			sub.GradingDegraded = true
			sub.DegradedReason = err.Error()
		} else {
			assistant = a
			if c, ok := a.(io.Closer); ok {
				defer c.Close()
			}
		}
	}

	isCorrect, score := Grade(q, input)
	finalScore := 0.0
	if score != nil {
		finalScore = *score
	}

	if q.Type == models.FreeResponse {
		switch {
		case assistant == nil:
			if !sub.GradingDegraded {
				sub.GradingDegraded = true
				sub.DegradedReason = "no model available to grade free response"
			}
		default:
			suggested := lo.FromPtr(q.SuggestedAnswer)
			s, ok := assistant.GradeFreeResponse(ctx, q.Text, suggested, input)
			if ok {
				finalScore = s
			} else {
				sub.GradingDegraded = true
				sub.DegradedReason = "free response could not be graded"
			}
		}
	}

	var explanation *string
	if assistant != nil {
		text, err := assistant.GenerateExplanation(ctx, q.Text, sub.CorrectAnswer, &input, isCorrect)
		if err != nil {
			log.Printf("Explanation failed for question %s: %v", q.ID, err)
			text = fmt.Sprintf("Could not generate explanation: %v", err)
			var authErr *llm.AuthenticationError
			if errors.As(err, &authErr) && !sub.GradingDegraded {
				sub.GradingDegraded = true
				sub.DegradedReason = "the model API key was rejected"
			}
		}
		explanation = &text
	}

	answer := &models.Answer{
		AttemptID:   attempt.ID,
		QuestionID:  q.ID,
		UserInput:   input,
		IsCorrect:   isCorrect,
		Score:       finalScore,
		Explanation: explanation,
		CreatedAt:   e.now(),
	}

	attempt.CurrentQuestionIndex = index + 1
	attempt.TotalScore += finalScore
	if attempt.CurrentQuestionIndex >= len(test.Questions) {
		completed := e.now()
		attempt.IsComplete = true
		attempt.CompletedAt = &completed
	}

	if err := e.store.RecordAnswer(ctx, attempt, answer); err != nil {
		if errors.Is(err, ErrAlreadyAnswered) || errors.Is(err, ErrOutOfOrder) {
			return nil, err
		}
		return nil, fmt.Errorf("record answer: %w", err)
	}

	if attempt.IsComplete {
		log.Printf("Attempt %s completed with score %.2f/%d", attempt.ID, attempt.TotalScore, len(test.Questions))
	}

	sub.Answer = answer
	sub.Attempt = attempt
	return sub, nil
}

// GetOrCreateHint returns the cached hint for a question or generates and
// caches one. The assistant is only built when no hint is cached.
func (e *Engine) GetOrCreateHint(ctx context.Context, questionID, userID uuid.UUID, source AssistantSource) (string, bool, error) {
	q, err := e.store.GetQuestion(ctx, questionID)
	if err != nil {
		return "", false, notFound(err)
	}
	test, err := e.ownedTest(ctx, q.TestID, userID)
	if err != nil {
		return "", false, err
	}
	if q.Hint != nil && *q.Hint != "" {
		return *q.Hint, true, nil
	}

	assistant, err := source(ctx)
	if err != nil {
		return "", false, err
	}
	if c, ok := assistant.(io.Closer); ok {
		defer c.Close()
	}

	hint, err := assistant.GenerateHint(ctx, q.Text, test.SourceSnippet)
	if err != nil {
		return "", false, err
	}
	if err := e.store.SetQuestionHint(ctx, q.ID, hint); err != nil {
		return "", false, fmt.Errorf("save hint: %w", err)
	}
	return hint, false, nil
}

// Results joins a completed attempt's questions with its answers and lists
// the user's other completed attempts on the same test.
func (e *Engine) Results(ctx context.Context, attemptID, userID uuid.UUID) (*models.AttemptResults, error) {
	attempt, test, err := e.load(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsComplete {
		return nil, ErrAttemptIncomplete
	}

	answers, err := e.store.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byQuestion := lo.SliceToMap(answers, func(a models.Answer) (uuid.UUID, models.Answer) {
		return a.QuestionID, a
	})

	items := make([]models.ResultItem, 0, len(test.Questions))
	for i := range test.Questions {
		q := test.Questions[i]
		item := models.ResultItem{Question: q, CorrectAnswer: CorrectAnswerDisplay(&q)}
		if a, ok := byQuestion[q.ID]; ok {
			item.Answer = &a
		}
		items = append(items, item)
	}

	completed, err := e.store.ListCompletedAttempts(ctx, test.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempt history: %w", err)
	}
	history := lo.Filter(completed, func(a *models.Attempt, _ int) bool {
		return a.ID != attempt.ID
	})

	return &models.AttemptResults{
		Attempt:          attempt,
		TestTitle:        test.Title,
		MaxPossibleScore: float64(len(test.Questions)),
		Items:            items,
		History:          history,
	}, nil
}

func (e *Engine) load(ctx context.Context, attemptID, userID uuid.UUID) (*models.Attempt, *models.TestDefinition, error) {
	attempt, err := e.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	if attempt.UserID != userID {
		return nil, nil, ErrNotFound
	}
	test, err := e.store.GetTest(ctx, attempt.TestID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	return attempt, test, nil
}

func (e *Engine) ownedTest(ctx context.Context, testID, userID uuid.UUID) (*models.TestDefinition, error) {
	test, err := e.store.GetTest(ctx, testID)
	if err != nil {
		return nil, notFound(err)
	}
	if test.UserID != userID {
		return nil, ErrNotFound
	}
	return test, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
