package agent

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableProviderError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"rate limit", &anthropic.Error{StatusCode: http.StatusTooManyRequests}, true},
		{"server error", &anthropic.Error{StatusCode: http.StatusInternalServerError}, true},
		{"overloaded", &anthropic.Error{StatusCode: http.StatusServiceUnavailable}, true},
		{"bad api key", &anthropic.Error{StatusCode: http.StatusUnauthorized}, false},
		{"forbidden", &anthropic.Error{StatusCode: http.StatusForbidden}, false},
		{"bad request", &anthropic.Error{StatusCode: http.StatusBadRequest}, false},
		{"call timeout", context.DeadlineExceeded, true},
		{"plain transport error", errors.New("connection reset by peer"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, isRetryableProviderError(tc.err))
		})
	}
}

func TestGenerateError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &GenerateError{Retryable: true, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "retryable")
}
