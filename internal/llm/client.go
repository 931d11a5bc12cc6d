package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	DefaultMaxAttempts     = 3
	DefaultRetryDelay      = 5 * time.Second
	DefaultValidationDelay = 2 * time.Second
	DefaultTemperature     = 0.5
)

// Message is one turn of a conversation sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is what a Backend receives for a single completion.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	JSONMode    bool
}

// Backend performs one completion against a model provider. Implementations
// classify provider failures into AuthenticationError or TransportError.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
	Close() error
}

// Validator inspects a response and reports whether it is acceptable along
// with a human-readable diagnostic.
type Validator func(content string) (ok bool, diagnostic string)

// ErrExhausted is returned when every attempt failed without a recorded cause.
var ErrExhausted = errors.New("model call failed after all attempts")

// AuthenticationError means the credential was rejected. It is never retried.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TransportError covers network failures, rate limiting and other provider
// errors that are worth another attempt.
type TransportError struct {
	Err         error
	RateLimited bool
}

func (e *TransportError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("rate limited: %v", e.Err)
	}
	return fmt.Sprintf("model request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError carries the diagnostic of the last rejected response.
type ValidationError struct {
	Diagnostic string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("response failed validation: %s", e.Diagnostic)
}

const correctionPrompt = "The previous response was invalid (%s). Please adhere strictly to the required format and try again."

// Client sends conversations to a Backend, retrying transport failures with
// linear backoff and feeding validation diagnostics back to the model.
type Client struct {
	backend         Backend
	model           string
	temperature     float32
	retryDelay      time.Duration
	validationDelay time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

func WithValidationDelay(d time.Duration) Option {
	return func(c *Client) { c.validationDelay = d }
}

func WithTemperature(t float32) Option {
	return func(c *Client) { c.temperature = t }
}

// WithSleep replaces the backoff sleep; tests use it to avoid real waits.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func NewClient(backend Backend, model string, opts ...Option) *Client {
	c := &Client{
		backend:         backend,
		model:           model,
		temperature:     DefaultTemperature,
		retryDelay:      DefaultRetryDelay,
		validationDelay: DefaultValidationDelay,
		sleep:           sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Model() string { return c.model }

func (c *Client) Close() error {
	if c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

// Call runs up to maxAttempts sequential attempts. The caller's conversation
// is never mutated; corrective turns are appended to a private copy.
func (c *Client) Call(ctx context.Context, conversation []Message, validate Validator, strictJSON bool, maxAttempts int) (string, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	messages := make([]Message, len(conversation))
	copy(messages, conversation)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log.Printf("LLM call attempt %d/%d (model=%s, json=%t)", attempt, maxAttempts, c.model, strictJSON)

		content, err := c.backend.Complete(ctx, Request{
			Model:       c.model,
			Messages:    messages,
			Temperature: c.temperature,
			JSONMode:    strictJSON,
		})
		if err != nil {
			var authErr *AuthenticationError
			if errors.As(err, &authErr) {
				log.Printf("LLM authentication failed: %v", err)
				return "", err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}

			var transportErr *TransportError
			if !errors.As(err, &transportErr) {
				transportErr = &TransportError{Err: err}
			}
			lastErr = transportErr
			log.Printf("LLM attempt %d failed: %v", attempt, transportErr)

			if attempt < maxAttempts {
				delay := c.retryDelay * time.Duration(attempt)
				if transportErr.RateLimited {
					delay *= 2
				}
				if err := c.sleep(ctx, delay); err != nil {
					return "", err
				}
			}
			continue
		}

		if validate == nil {
			return content, nil
		}

		content = strings.TrimSpace(content)
		ok, diagnostic := validate(content)
		if ok {
			return content, nil
		}

		log.Printf("LLM attempt %d rejected: %s", attempt, diagnostic)
		lastErr = &ValidationError{Diagnostic: diagnostic}
		messages = append(messages,
			Message{Role: RoleAssistant, Content: content},
			Message{Role: RoleUser, Content: fmt.Sprintf(correctionPrompt, diagnostic)},
		)

		if attempt < maxAttempts {
			if err := c.sleep(ctx, c.validationDelay); err != nil {
				return "", err
			}
		}
	}

	if lastErr == nil {
		return "", ErrExhausted
	}
	return "", lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
