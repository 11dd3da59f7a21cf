package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Roles used in chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion call: model, ordered role-tagged messages and
// an output-length cap.
type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// Completer is the completion service. Implementations return the generated
// text or an error; callers never depend on the provider response shape.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindRateLimit     ErrorKind = "rate_limit"
	KindAuth          ErrorKind = "auth"
	KindMalformed     ErrorKind = "malformed_request"
	KindTimeout       ErrorKind = "timeout"
	KindServer        ErrorKind = "server"
	KindNetwork       ErrorKind = "network"
	KindEmptyResponse ErrorKind = "empty_response"
	KindCanceled      ErrorKind = "canceled"
	KindUnknown       ErrorKind = "unknown"
)

// ErrEmptyResponse is returned when the provider answered without any text.
var ErrEmptyResponse = errors.New("empty response content")

// ProviderError is a failed completion call.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s api error %d (%s): %s", e.Provider, e.StatusCode, e.Kind, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt may succeed.
func (e *ProviderError) Retryable() bool {
	return e.Kind.Retryable()
}

func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindTimeout, KindServer, KindNetwork, KindEmptyResponse, KindUnknown:
		return true
	}
	return false
}

// KindForStatus maps an HTTP status code from a provider to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 408:
		return KindTimeout
	case status == 429:
		return KindRateLimit
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindMalformed
	}
	return KindUnknown
}

// Classify returns the ErrorKind of an arbitrary completion error.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrEmptyResponse):
		return KindEmptyResponse
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnknown
}
