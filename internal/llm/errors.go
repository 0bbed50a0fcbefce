package llm

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitError signals an HTTP 429 from the backend. The orchestrator
// backs off and retries the same round rather than failing the request.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration // zero when the backend gave no hint
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

// FatalError signals a request that will never succeed on retry:
// bad credentials, exhausted billing, or a structurally invalid
// request. The orchestrator surfaces it to the user immediately.
type FatalError struct {
	Provider string
	Status   int
	Message  string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %d: %s", e.Provider, e.Status, e.Message)
}

// TransientError signals a retryable backend failure (5xx).
type TransientError struct {
	Provider string
	Status   int
	Message  string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient %d: %s", e.Provider, e.Status, e.Message)
}

// classifyHTTPError maps a non-200 backend response to the error
// taxonomy. body is the (bounded) error body for diagnostics.
func classifyHTTPError(provider string, status int, header http.Header, body string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Provider: provider, RetryAfter: parseRetryAfter(header)}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &FatalError{Provider: provider, Status: status, Message: body}
	case status == http.StatusBadRequest && looksLikeBilling(body):
		return &FatalError{Provider: provider, Status: status, Message: body}
	case status >= 500:
		return &TransientError{Provider: provider, Status: status, Message: body}
	default:
		return &FatalError{Provider: provider, Status: status, Message: body}
	}
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// looksLikeBilling spots credit/quota exhaustion messages that some
// backends report as 400 instead of a dedicated status.
func looksLikeBilling(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"credit", "billing", "quota", "insufficient"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
