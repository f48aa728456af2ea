package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := classifyError(context.DeadlineExceeded, ctx)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ExecErrorTimeout, execErr.Kind)
}

func TestClassifyError_ContextExpiryWinsOverWrappedError(t *testing.T) {
	// pgx often surfaces a connection error when the context deadline fires
	// mid-query; the classification must still be a timeout.
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := classifyError(errors.New("conn closed"), ctx)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ExecErrorTimeout, execErr.Kind)
}

func TestClassifyError_PgErrorKeepsMessageVerbatim(t *testing.T) {
	pgErr := &pgconn.PgError{
		Severity: "ERROR",
		Code:     "42703",
		Message:  `column "cust_id" does not exist`,
	}

	err := classifyError(pgErr, context.Background())

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ExecErrorDB, execErr.Kind)
	assert.Contains(t, execErr.Message, `column "cust_id" does not exist`)
	assert.Contains(t, execErr.Message, "42703")
}

func TestClassifyError_GenericError(t *testing.T) {
	err := classifyError(errors.New("connection refused"), context.Background())

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ExecErrorDB, execErr.Kind)
	assert.Equal(t, "connection refused", execErr.Message)
}

func TestExecError_Error(t *testing.T) {
	err := &ExecError{Kind: ExecErrorDB, Message: "boom"}
	assert.Equal(t, "db_error: boom", err.Error())
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"orders"`, quoteIdentifier("orders"))
	assert.Equal(t, `"we""ird"`, quoteIdentifier(`we"ird`))
}
