package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quizforge-backend/internal/models"
	"quizforge-backend/internal/quiz"
)

// QuizRepo stores test definitions and their questions.
type QuizRepo struct {
	pool *pgxpool.Pool
}

func NewQuizRepo(pool *pgxpool.Pool) *QuizRepo {
	return &QuizRepo{pool: pool}
}

// QuizStore is the quiz.Store backed by postgres.
type QuizStore struct {
	*QuizRepo
	*AttemptRepo
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{QuizRepo: NewQuizRepo(pool), AttemptRepo: NewAttemptRepo(pool)}
}

var _ quiz.Store = (*QuizStore)(nil)

// Create inserts the test and all of its questions in one transaction. A test
// without questions is never stored.
func (r *QuizRepo) Create(ctx context.Context, t *models.TestDefinition) error {
	if len(t.Questions) == 0 {
		return quiz.ErrNoQuestions
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	t.ID = uuid.New()
	err = tx.QueryRow(ctx,
		`INSERT INTO test_definitions (id, user_id, title, source_snippet)
		VALUES ($1, $2, $3, $4) RETURNING created_at`,
		t.ID, t.UserID, t.Title, t.SourceSnippet,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert test: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range t.Questions {
		q := &t.Questions[i]
		q.ID = uuid.New()
		q.TestID = t.ID
		q.Index = i

		optionsBytes, answerBytes, err := encodeQuestion(q)
		if err != nil {
			return err
		}
		batch.Queue(
			`INSERT INTO questions (id, test_id, question_index, question_type, text, options_json, answer_info_json, suggested_answer)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			q.ID, q.TestID, q.Index, string(q.Type), q.Text, optionsBytes, answerBytes, q.SuggestedAnswer,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}

// GetTest loads a test with its questions in index order.
func (r *QuizRepo) GetTest(ctx context.Context, id uuid.UUID) (*models.TestDefinition, error) {
	t := &models.TestDefinition{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, title, source_snippet, created_at FROM test_definitions WHERE id = $1`, id,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.SourceSnippet, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, question_index, question_type, text, options_json, answer_info_json, suggested_answer, hint
		FROM questions WHERE test_id = $1 ORDER BY question_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		t.Questions = append(t.Questions, *q)
	}
	return t, rows.Err()
}

func (r *QuizRepo) GetQuestion(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, test_id, question_index, question_type, text, options_json, answer_info_json, suggested_answer, hint
		FROM questions WHERE id = $1`, id)
	return scanQuestion(row)
}

func (r *QuizRepo) SetQuestionHint(ctx context.Context, questionID uuid.UUID, hint string) error {
	_, err := r.pool.Exec(ctx, "UPDATE questions SET hint = $1 WHERE id = $2", hint, questionID)
	return err
}

// ListSummaries returns the user's tests with attempt statistics, newest
// first.
func (r *QuizRepo) ListSummaries(ctx context.Context, userID uuid.UUID) ([]*models.TestSummary, error) {
	query := `SELECT t.id, t.title, t.source_snippet, t.created_at,
			(SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id),
			(SELECT COUNT(*) FROM attempts a WHERE a.test_id = t.id AND a.user_id = $1),
			(SELECT MAX(a.total_score) FROM attempts a WHERE a.test_id = t.id AND a.user_id = $1 AND a.is_complete)
		FROM test_definitions t
		WHERE t.user_id = $1
		ORDER BY t.created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []*models.TestSummary{}
	for rows.Next() {
		s := &models.TestSummary{}
		if err := rows.Scan(&s.ID, &s.Title, &s.SourceSnippet, &s.CreatedAt,
			&s.QuestionCount, &s.AttemptCount, &s.BestScore); err != nil {
			return nil, err
		}
		s.MaxPossibleScore = float64(s.QuestionCount)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Delete removes a test owned by userID; questions, attempts and answers
// cascade.
func (r *QuizRepo) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM test_definitions WHERE id = $1 AND user_id = $2", id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func encodeQuestion(q *models.Question) ([]byte, []byte, error) {
	var optionsBytes, answerBytes []byte
	var err error
	if len(q.Options) > 0 {
		if optionsBytes, err = json.Marshal(q.Options); err != nil {
			return nil, nil, fmt.Errorf("encode options: %w", err)
		}
	}
	if !q.AnswerInfo.IsZero() {
		if answerBytes, err = json.Marshal(q.AnswerInfo); err != nil {
			return nil, nil, fmt.Errorf("encode answer info: %w", err)
		}
	}
	return optionsBytes, answerBytes, nil
}

func scanQuestion(row pgx.Row) (*models.Question, error) {
	q := &models.Question{}
	var questionType string
	var optionsBytes, answerBytes []byte

	err := row.Scan(&q.ID, &q.TestID, &q.Index, &questionType, &q.Text,
		&optionsBytes, &answerBytes, &q.SuggestedAnswer, &q.Hint)
	if err != nil {
		return nil, err
	}
	q.Type = models.QuestionType(questionType)

	if len(optionsBytes) > 0 {
		if err := json.Unmarshal(optionsBytes, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options for question %s: %w", q.ID, err)
		}
	}
	if len(answerBytes) > 0 {
		info := &models.AnswerInfo{}
		if err := json.Unmarshal(answerBytes, info); err != nil {
			return nil, fmt.Errorf("decode answer info for question %s: %w", q.ID, err)
		}
		if !info.IsZero() {
			q.AnswerInfo = info
		}
	}
	return q, nil
}
