package summary

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("summary: provider returned empty text")

// ErrorClass groups provider failures for logs and metrics. Every class triggers fallback to
// the next provider.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassTimeout
	ClassRateLimited
	ClassAuth
	ClassUnavailable
	ClassEmpty
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTimeout:
		return "timeout"
	case ClassRateLimited:
		return "rate_limited"
	case ClassAuth:
		return "auth"
	case ClassUnavailable:
		return "unavailable"
	case ClassEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// ClassifyError classifies a provider error. SDK status codes are used when present; otherwise
// the message is matched against common patterns.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, ErrEmptyResponse) {
		return ClassEmpty
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	if code := statusCode(err); code != 0 {
		switch {
		case code == http.StatusTooManyRequests:
			return ClassRateLimited
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return ClassAuth
		case code == http.StatusNotFound || code >= 500:
			return ClassUnavailable
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range []string{"timeout", "deadline exceeded", "timed out"} {
		if strings.Contains(lower, p) {
			return ClassTimeout
		}
	}
	for _, p := range []string{"429", "too many requests", "rate limit", "quota", "resource_exhausted"} {
		if strings.Contains(lower, p) {
			return ClassRateLimited
		}
	}
	for _, p := range []string{"401", "403", "unauthorized", "permission denied", "api key", "unauthenticated"} {
		if strings.Contains(lower, p) {
			return ClassAuth
		}
	}
	for _, p := range []string{"500", "502", "503", "504", "overloaded", "unavailable", "connection refused", "connection reset", "no such host", "not found", "eof"} {
		if strings.Contains(lower, p) {
			return ClassUnavailable
		}
	}
	return ClassUnknown
}

// statusCode extracts the HTTP status from the provider SDK error types.
func statusCode(err error) int {
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		return aerr.StatusCode
	}
	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return oerr.StatusCode
	}
	var lerr api.StatusError
	if errors.As(err, &lerr) {
		return lerr.StatusCode
	}
	var gerr genai.APIError
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
