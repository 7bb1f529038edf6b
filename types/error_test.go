package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("azure-openai")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_CodeSentinel(t *testing.T) {
	t.Parallel()

	sentinel := &Error{Code: ErrCompletionFailure}
	wrapped := fmt.Errorf("cycle 3: %w", NewError(ErrCompletionFailure, "deployment unreachable"))

	if !errors.Is(wrapped, sentinel) {
		t.Fatalf("expected code sentinel to match wrapped error")
	}
	if errors.Is(wrapped, &Error{Code: ErrSelectionAmbiguity}) {
		t.Fatalf("different code must not match")
	}
	if !IsErrorCode(wrapped, ErrCompletionFailure) {
		t.Fatalf("expected IsErrorCode through fmt wrapping")
	}
	if GetErrorCode(wrapped) != ErrCompletionFailure {
		t.Fatalf("expected GetErrorCode through fmt wrapping")
	}
}

func TestWrapError_Nil(t *testing.T) {
	t.Parallel()

	if WrapError(nil, ErrInternalError, "x") != nil {
		t.Fatalf("expected nil for nil cause")
	}
	if _, ok := AsError(errors.New("plain")); ok {
		t.Fatalf("plain error is not *Error")
	}
}

func TestHTTPStatusFor(t *testing.T) {
	t.Parallel()

	cases := map[ErrorCode]int{
		ErrCompletionFailure: http.StatusBadGateway,
		ErrInvalidRequest:    http.StatusBadRequest,
		ErrNotFound:          http.StatusNotFound,
		ErrRateLimited:       http.StatusTooManyRequests,
		ErrUpstreamTimeout:   http.StatusGatewayTimeout,
		ErrorCode("UNKNOWN"): http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatusFor(code); got != want {
			t.Fatalf("%s: expected %d, got %d", code, want, got)
		}
	}
}
