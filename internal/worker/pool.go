package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quizforge-backend/internal/llm"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/quiz"
	"quizforge-backend/internal/services"
)

const (
	QueueTestGeneration = "queue:test-generation"

	popTimeout    = 30 * time.Second
	lockTTL       = 10 * time.Minute
	snippetLength = 300
)

var errNoValidQuestions = errors.New("the model did not return any usable questions")

// QuestionGenerator is the part of llm.Generator the pool needs.
type QuestionGenerator interface {
	GenerateQuestionSet(ctx context.Context, text string, count int, types []string) ([]llm.RawQuestion, error)
	Close() error
}

// GeneratorSource builds a generator bound to the job owner's API key.
type GeneratorSource func(ctx context.Context, userID uuid.UUID) (QuestionGenerator, error)

type jobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
	SetReference(ctx context.Context, id, referenceID uuid.UUID) error
}

type testStore interface {
	Create(ctx context.Context, t *models.TestDefinition) error
}

type publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

type Pool struct {
	redis       *redis.Client
	jobs        jobStore
	tests       testStore
	generators  GeneratorSource
	publisher   publisher
	workerCount int
	stopChan    chan struct{}

	requeue func(job *models.Job, delay time.Duration)
}

func NewPool(
	redisClient *redis.Client,
	jobs jobStore,
	tests testStore,
	generators GeneratorSource,
	pub publisher,
	workerCount int,
) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		redis:       redisClient,
		jobs:        jobs,
		tests:       tests,
		generators:  generators,
		publisher:   pub,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
	p.requeue = p.requeueAfter
	return p
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

// Enqueue pushes a stored job onto its queue.
func (p *Pool) Enqueue(ctx context.Context, job *models.Job) error {
	queue, err := jobQueueName(job.Type)
	if err != nil {
		return err
	}
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return p.redis.LPush(ctx, queue, string(jobBytes)).Err()
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, popTimeout, QueueTestGeneration).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Printf("Worker %d: dequeue failed: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil || !locked {
			continue // another worker has this job
		}

		log.Printf("Worker %d: processing job %s (type: %s)", id, job.ID, job.Type)
		p.runJob(ctx, &job)

		p.redis.Del(ctx, lockKey)
	}
}

// runJob executes one job and records its outcome.
func (p *Pool) runJob(ctx context.Context, job *models.Job) {
	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusProcessing)
	p.publishStep(ctx, job, 1, "Reading source material")

	var (
		test    *models.TestDefinition
		skipped int
		err     error
	)
	switch job.Type {
	case models.JobTypeTestGeneration:
		test, skipped, err = p.processTestGeneration(ctx, job)
	default:
		err = permanent(fmt.Errorf("unknown job type: %s", job.Type))
	}

	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}
	p.handleSuccess(ctx, job, test, skipped)
}

func (p *Pool) processTestGeneration(ctx context.Context, job *models.Job) (*models.TestDefinition, int, error) {
	var cfg models.TestGenerationConfig
	if err := json.Unmarshal(job.ConfigJSON, &cfg); err != nil {
		return nil, 0, permanent(fmt.Errorf("invalid job config: %w", err))
	}
	if strings.TrimSpace(cfg.SourceText) == "" {
		return nil, 0, permanent(errors.New("job has no source text"))
	}

	gen, err := p.generators(ctx, job.UserID)
	if err != nil {
		return nil, 0, err
	}
	defer gen.Close()

	p.publishStep(ctx, job, 2, "Generating questions")
	raw, err := gen.GenerateQuestionSet(ctx, cfg.SourceText, cfg.NumQuestions, cfg.QuestionTypes)
	if err != nil {
		return nil, 0, fmt.Errorf("generate questions: %w", err)
	}

	p.publishStep(ctx, job, 3, "Checking questions")
	questions, skipped := quiz.ParseQuestionSet(raw)
	if skipped > 0 {
		log.Printf("Job %s: skipped %d of %d generated questions", job.ID, skipped, len(raw))
	}
	if len(questions) == 0 {
		return nil, skipped, permanent(errNoValidQuestions)
	}

	p.publishStep(ctx, job, 4, "Saving test")
	test := &models.TestDefinition{
		UserID:        job.UserID,
		Title:         cfg.Title,
		SourceSnippet: snippet(cfg.SourceText, snippetLength),
		Questions:     questions,
	}
	if err := p.tests.Create(ctx, test); err != nil {
		return nil, skipped, fmt.Errorf("save test: %w", err)
	}
	return test, skipped, nil
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job, test *models.TestDefinition, skipped int) {
	if err := p.jobs.SetReference(ctx, job.ID, test.ID); err != nil {
		log.Printf("Job %s: failed to link test %s: %v", job.ID, test.ID, err)
	}
	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusCompleted)

	p.publisher.Publish(ctx, job.UserID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   test.ID,
			ResultType: "test",
			Skipped:    skipped,
		},
	})

	log.Printf("Job %s completed successfully (test %s, %d questions)", job.ID, test.ID, len(test.Questions))
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	maxRetries := job.MaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}

	if !isPermanent(err) && job.RetryCount < maxRetries {
		log.Printf("Job %s failed (attempt %d): %s, retrying", job.ID, job.RetryCount, errMsg)
		p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusPending)
		p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		p.requeue(job, backoff)
		return
	}

	log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
	p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	p.jobs.UpdateStatus(ctx, job.ID, models.JobStatusFailed)

	code, message := describeFailure(err)
	p.publisher.Publish(ctx, job.UserID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    code,
			ErrorMessage: message,
		},
	})
}

func (p *Pool) requeueAfter(job *models.Job, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := p.Enqueue(context.Background(), job); err != nil {
			log.Printf("Job %s: requeue failed: %v", job.ID, err)
		}
	})
}

func (p *Pool) publishStep(ctx context.Context, job *models.Job, step int, name string) {
	p.publisher.Publish(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID:    job.ID,
			Step:     step,
			StepName: name,
		},
	})
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// isPermanent reports failures a retry cannot fix: bad credentials, a
// missing key, or unusable input.
func isPermanent(err error) bool {
	var (
		pe    *permanentError
		auth  *llm.AuthenticationError
		forb  *services.ForbiddenError
		notFd *services.NotFoundError
	)
	return errors.As(err, &pe) || errors.As(err, &auth) || errors.As(err, &forb) || errors.As(err, &notFd)
}

func describeFailure(err error) (code, message string) {
	var (
		auth *llm.AuthenticationError
		forb *services.ForbiddenError
	)
	switch {
	case errors.As(err, &auth):
		return "API_KEY_INVALID", "Your API key was rejected. Please update it in settings."
	case errors.As(err, &forb):
		return "API_KEY_MISSING", forb.Message
	case errors.Is(err, errNoValidQuestions):
		return "NO_QUESTIONS", "No valid questions could be generated from this material. Try different text."
	default:
		return "JOB_FAILED", "Could not generate the test. Please try again."
	}
}

func jobQueueName(jobType string) (string, error) {
	switch jobType {
	case models.JobTypeTestGeneration:
		return QueueTestGeneration, nil
	default:
		return "", fmt.Errorf("unknown job type: %s", jobType)
	}
}

func snippet(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
