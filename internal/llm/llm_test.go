package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindForStatus(t *testing.T) {
	cases := map[int]ErrorKind{
		401: KindAuth,
		403: KindAuth,
		408: KindTimeout,
		429: KindRateLimit,
		400: KindMalformed,
		422: KindMalformed,
		500: KindServer,
		503: KindServer,
	}
	for status, want := range cases {
		if got := KindForStatus(status); got != want {
			t.Errorf("KindForStatus(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	pe := &ProviderError{Provider: "openai", Kind: KindRateLimit, StatusCode: 429}
	if got := Classify(fmt.Errorf("wrapped: %w", pe)); got != KindRateLimit {
		t.Errorf("expected rate_limit for wrapped provider error, got %s", got)
	}
	if got := Classify(context.DeadlineExceeded); got != KindTimeout {
		t.Errorf("expected timeout, got %s", got)
	}
	if got := Classify(context.Canceled); got != KindCanceled {
		t.Errorf("expected canceled, got %s", got)
	}
	if got := Classify(ErrEmptyResponse); got != KindEmptyResponse {
		t.Errorf("expected empty_response, got %s", got)
	}
	if got := Classify(errors.New("boom")); got != KindUnknown {
		t.Errorf("expected unknown, got %s", got)
	}
}

func TestRetryable(t *testing.T) {
	if (&ProviderError{Kind: KindAuth}).Retryable() {
		t.Error("auth errors must not be retryable")
	}
	if (&ProviderError{Kind: KindMalformed}).Retryable() {
		t.Error("malformed requests must not be retryable")
	}
	if !(&ProviderError{Kind: KindRateLimit}).Retryable() {
		t.Error("rate limit errors should be retryable")
	}
	if KindCanceled.Retryable() {
		t.Error("canceled must not be retryable")
	}
}

func TestProviderError_Message(t *testing.T) {
	err := &ProviderError{Provider: "openai", Kind: KindAuth, StatusCode: 401, Message: "invalid key"}
	want := "openai api error 401 (auth): invalid key"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
