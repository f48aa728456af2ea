// Package agent implements the generation-validation-execution-retry loop
// that turns a natural-language question into rows from the database.
//
// One question runs one session: generate a candidate statement, validate
// it, execute it, and on any failure feed the previous SQL and the exact
// failure message back into a bounded number of regeneration attempts.
// Attempts are strictly sequential; each retry prompt depends on the
// previous attempt's failure.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/bondanherumurti-transfez/nl-to-sql-agent/pkg/postgres"
	"github.com/bondanherumurti-transfez/nl-to-sql-agent/pkg/sqlguard"
)

const (
	defaultDefaultLimit = 100
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
)

// Config holds the collaborators and limits of the retry loop.
type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	LLM     LLMClient
	Querier Querier
	Schema  SchemaFetcher
	Prompts PromptBuilder

	// MaxRetries is the number of regeneration rounds after the first
	// attempt; MaxRetries = 3 means at most 4 generation attempts, and
	// zero means a single attempt with no retries. The config layer
	// supplies the default; the agent takes the value literally.
	MaxRetries int
	// DefaultLimit is appended as a LIMIT clause to accepted statements
	// that have none.
	DefaultLimit int
	// RetryBackoff is the initial pause before a regeneration attempt;
	// it grows exponentially up to a fixed cap.
	RetryBackoff time.Duration
}

// Validate fills defaults and rejects missing collaborators.
func (c *Config) Validate() error {
	if c.LLM == nil {
		return errors.New("llm client is required")
	}
	if c.Querier == nil {
		return errors.New("querier is required")
	}
	if c.Schema == nil {
		return errors.New("schema fetcher is required")
	}
	if c.Prompts == nil {
		return errors.New("prompt builder is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	if c.DefaultLimit == 0 {
		c.DefaultLimit = defaultDefaultLimit
	}
	if c.DefaultLimit < 0 {
		return errors.New("default limit must be >= 0")
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	return nil
}

// Agent is the retry controller.
type Agent struct {
	cfg Config
	log *slog.Logger
}

// New creates an Agent from the config.
func New(cfg Config) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Agent{cfg: cfg, log: cfg.Logger}, nil
}

// Ask runs the full loop for one question and returns the terminal session
// result. The returned error is non-nil only for failures outside the loop
// (schema fetch, context cancellation); attempt-level failures end up in
// SessionResult.Err together with the audit trail.
func (a *Agent) Ask(ctx context.Context, question string) (*SessionResult, error) {
	schemaContext, err := a.cfg.Schema.FetchSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema context: %w", err)
	}

	res := &SessionResult{Question: question}
	maxAttempts := a.cfg.MaxRetries + 1

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.RetryBackoff
	bo.MaxInterval = maxRetryBackoff
	bo.MaxElapsedTime = 0

	// Error context carried into the next prompt: the previous SQL and the
	// verbatim failure message. Grows strictly, never resets mid-session.
	var lastSQL, lastFailure string

	for number := 1; number <= maxAttempts; number++ {
		if number > 1 {
			if err := a.pause(ctx, bo.NextBackOff()); err != nil {
				res.Err = err
				return res, err
			}
		}

		attempt, attemptErr, ok := a.attempt(ctx, res, number, schemaContext, question, lastSQL, lastFailure)
		res.Attempts = append(res.Attempts, attempt)

		if ok {
			return res, nil
		}
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res, ctx.Err()
		}

		// Fatal provider errors are surfaced immediately, retrying with the
		// same credentials cannot succeed.
		var genErr *GenerateError
		if errors.As(attemptErr, &genErr) && !genErr.Retryable {
			res.Err = attemptErr
			return res, nil
		}

		if attempt.SQL != "" {
			lastSQL = attempt.SQL
		}
		lastFailure = attempt.FailureDetail

		if a.log != nil {
			a.log.Info("attempt failed",
				"attempt", number,
				"of", maxAttempts,
				"kind", attempt.FailureKind,
				"detail", attempt.FailureDetail)
		}
	}

	res.Err = fmt.Errorf("no result after %d attempts, last error: %s", maxAttempts, lastFailure)
	return res, nil
}

// attempt runs one generate→validate→execute cycle. It reports success via
// ok and records the outcome in the returned Attempt; on success it also
// fills res.SQL and res.Result. The raw error of a failed step is returned
// alongside so the caller can classify it.
func (a *Agent) attempt(ctx context.Context, res *SessionResult, number int, schemaContext, question, lastSQL, lastFailure string) (att Attempt, attemptErr error, ok bool) {
	var system, user string
	if lastFailure == "" {
		system, user = a.cfg.Prompts.Generate(schemaContext, question)
	} else {
		system, user = a.cfg.Prompts.Retry(schemaContext, question, lastSQL, lastFailure)
	}
	att = Attempt{Number: number, Prompt: user}

	completion, err := a.cfg.LLM.Complete(ctx, system, user)
	if err != nil {
		att.FailureKind = FailureGeneration
		att.FailureDetail = "the model provider failed to produce a completion: " + err.Error()
		return att, err, false
	}
	att.Completion = completion

	sql := ExtractSQL(completion)
	if sql == "" {
		att.FailureKind = FailureExtraction
		att.FailureDetail = "unparseable: no SQL statement found in the response"
		return att, nil, false
	}
	att.SQL = sql

	verdict := sqlguard.Validate(sql)
	if !verdict.Accepted {
		att.FailureKind = FailureValidation
		att.FailureDetail = fmt.Sprintf("%s: rejected by the safety validator: %s", verdict.Reason, verdict.Detail)
		return att, nil, false
	}

	stmt := sqlguard.EnsureLimit(verdict.Cleaned, a.cfg.DefaultLimit)
	att.SQL = stmt

	result, err := a.cfg.Querier.Query(ctx, stmt)
	if err != nil {
		att.FailureKind = FailureExecution
		att.FailureDetail = executionMessage(err)
		return att, err, false
	}

	res.SQL = stmt
	res.Result = &result
	return att, nil, true
}

// pause waits for the backoff interval via the injected clock, honoring
// cancellation.
func (a *Agent) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.cfg.Clock.After(d):
		return nil
	}
}

// executionMessage preserves the database error verbatim for the next
// prompt.
func executionMessage(err error) string {
	var execErr *postgres.ExecError
	if errors.As(err, &execErr) {
		return execErr.Message
	}
	return err.Error()
}
