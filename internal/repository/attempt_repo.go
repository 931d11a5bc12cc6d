package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quizforge-backend/internal/models"
	"quizforge-backend/internal/quiz"
)

type AttemptRepo struct {
	pool *pgxpool.Pool
}

func NewAttemptRepo(pool *pgxpool.Pool) *AttemptRepo {
	return &AttemptRepo{pool: pool}
}

const attemptColumns = `id, test_id, user_id, current_question_index, total_score, is_complete, started_at, completed_at`

func scanAttempt(row pgx.Row) (*models.Attempt, error) {
	a := &models.Attempt{}
	err := row.Scan(&a.ID, &a.TestID, &a.UserID, &a.CurrentQuestionIndex, &a.TotalScore,
		&a.IsComplete, &a.StartedAt, &a.CompletedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AttemptRepo) CreateAttempt(ctx context.Context, a *models.Attempt) error {
	a.ID = uuid.New()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempts (id, test_id, user_id, started_at) VALUES ($1, $2, $3, $4)`,
		a.ID, a.TestID, a.UserID, a.StartedAt,
	)
	return err
}

func (r *AttemptRepo) GetAttempt(ctx context.Context, id uuid.UUID) (*models.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

const answerColumns = `id, attempt_id, question_id, user_input, is_correct, score, explanation, created_at`

func scanAnswer(row pgx.Row) (*models.Answer, error) {
	a := &models.Answer{}
	err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.UserInput, &a.IsCorrect,
		&a.Score, &a.Explanation, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AttemptRepo) GetAnswer(ctx context.Context, attemptID, questionID uuid.UUID) (*models.Answer, error) {
	return scanAnswer(r.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE attempt_id = $1 AND question_id = $2`,
		attemptID, questionID))
}

func (r *AttemptRepo) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]models.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE attempt_id = $1 ORDER BY created_at`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []models.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// RecordAnswer inserts the answer and moves the attempt forward in one
// transaction. The attempt arrives already advanced, so the row is only
// updated while its cursor still points at the answered question.
func (r *AttemptRepo) RecordAnswer(ctx context.Context, attempt *models.Attempt, answer *models.Answer) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	answer.ID = uuid.New()
	err = tx.QueryRow(ctx,
		`INSERT INTO answers (id, attempt_id, question_id, user_input, is_correct, score, explanation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (attempt_id, question_id) DO NOTHING
		RETURNING created_at`,
		answer.ID, answer.AttemptID, answer.QuestionID, answer.UserInput, answer.IsCorrect,
		answer.Score, answer.Explanation, answer.CreatedAt,
	).Scan(&answer.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return quiz.ErrAlreadyAnswered
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE attempts
		SET current_question_index = $1, total_score = $2, is_complete = $3, completed_at = $4
		WHERE id = $5 AND current_question_index = $6 AND NOT is_complete`,
		attempt.CurrentQuestionIndex, attempt.TotalScore, attempt.IsComplete, attempt.CompletedAt,
		attempt.ID, attempt.CurrentQuestionIndex-1,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quiz.ErrOutOfOrder
	}

	return tx.Commit(ctx)
}

func (r *AttemptRepo) ListCompletedAttempts(ctx context.Context, testID, userID uuid.UUID) ([]*models.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		WHERE test_id = $1 AND user_id = $2 AND is_complete
		ORDER BY completed_at DESC`, testID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := []*models.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
