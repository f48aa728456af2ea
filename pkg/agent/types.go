package agent

import (
	"context"
	"fmt"

	"github.com/bondanherumurti-transfez/nl-to-sql-agent/pkg/postgres"
	"github.com/bondanherumurti-transfez/nl-to-sql-agent/pkg/sqlguard"
)

// LLMClient is the interface for interacting with an LLM.
type LLMClient interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Querier executes already-validated SQL statements.
type Querier interface {
	Query(ctx context.Context, sql string) (postgres.QueryResult, error)
}

// SchemaFetcher retrieves the schema context string for prompt construction.
type SchemaFetcher interface {
	FetchSchema(ctx context.Context) (string, error)
}

// PromptBuilder assembles generation and retry prompts.
type PromptBuilder interface {
	Generate(schemaContext, question string) (system, user string)
	Retry(schemaContext, question, failedSQL, errorMessage string) (system, user string)
}

// FailureKind classifies why an attempt failed.
type FailureKind string

const (
	FailureGeneration FailureKind = "generation"
	FailureExtraction FailureKind = "extraction"
	FailureValidation FailureKind = "validation"
	FailureExecution  FailureKind = "execution"
)

// Attempt is one generate→validate→execute cycle. Attempts are immutable
// once recorded; the sequence forms the audit trail of a session.
type Attempt struct {
	Number        int
	Prompt        string // user prompt sent for this attempt
	Completion    string // raw model output, empty when generation failed
	SQL           string // extracted candidate, empty when extraction failed
	FailureKind   FailureKind
	FailureDetail string
}

// Failed reports whether the attempt ended in a failure.
func (a Attempt) Failed() bool { return a.FailureKind != "" }

// SessionResult is the terminal outcome of one question's retry loop.
type SessionResult struct {
	Question string
	SQL      string                // the statement that produced Result
	Result   *postgres.QueryResult // set on success
	Attempts []Attempt
	Err      error // set on failure; last concrete error after exhaustion
}

// Succeeded reports whether the session produced rows.
func (r *SessionResult) Succeeded() bool { return r.Err == nil && r.Result != nil }

// LastValidationReason returns the validator reason of the final attempt,
// if the final attempt was a validation rejection.
func (r *SessionResult) LastValidationReason() sqlguard.Reason {
	if len(r.Attempts) == 0 {
		return sqlguard.ReasonNone
	}
	last := r.Attempts[len(r.Attempts)-1]
	if last.FailureKind != FailureValidation {
		return sqlguard.ReasonNone
	}
	return sqlguard.Reason(splitReason(last.FailureDetail))
}

// GenerateError is a provider-level generation failure. Retryable is false
// for authentication/configuration errors, which abort the session
// immediately instead of burning attempts.
type GenerateError struct {
	Retryable bool
	Err       error
}

func (e *GenerateError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("generation failed (retryable): %v", e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerateError) Unwrap() error { return e.Err }

// splitReason extracts the leading "reason:" token of a failure detail.
func splitReason(detail string) string {
	for i := 0; i < len(detail); i++ {
		if detail[i] == ':' {
			return detail[:i]
		}
	}
	return detail
}
