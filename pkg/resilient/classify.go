package resilient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"
)

// statusCodeRegex pulls an HTTP status code out of an error message for
// backends (OpenAI and others) whose SDK does not expose a typed error
// carrying the code.
var statusCodeRegex = regexp.MustCompile(`\b([45]\d{2})\b`)

// retryablePatterns/nonRetryablePatterns classify errors that carry no
// structured status code at all (raw transport errors from self-hosted
// backends, e.g. "EOF" or "runner no longer running").
var retryablePatterns = []string{
	"500", "502", "503", "504", "408",
	"timeout", "connection reset", "connection refused", "no such host",
	"temporary failure", "service unavailable", "internal server error",
	"bad gateway", "gateway timeout", "overloaded",
	"eof", "runner no longer running",
}

var nonRetryablePatterns = []string{
	"429", "rate limit", "too many requests", "throttl", "quota", "capacity",
	"401", "403", "404", "400", "invalid", "unauthorized", "authentication", "api key",
}

// ExtractHTTPStatusCode inspects known provider SDK error types first
// (Anthropic, Gemini), then falls back to regex-matching the message for
// backends that don't expose a typed status code.
func ExtractHTTPStatusCode(err error) int {
	if err == nil {
		return 0
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}

	var geminiErr *genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}

	if matches := statusCodeRegex.FindStringSubmatch(err.Error()); len(matches) >= 2 {
		var code int
		if _, err := fmt.Sscanf(matches[1], "%d", &code); err == nil {
			return code
		}
	}

	return 0
}

// IsRetryableStatusCode reports whether an HTTP status code should trigger
// a same-provider retry (spec §4.2: 429/503/529/500 retried; other 4xx are
// not). 529 (Anthropic "overloaded") and 503 share the 5xx treatment.
func IsRetryableStatusCode(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504, 529:
		return true
	default:
		return false
	}
}

// IsRetryable classifies an error for the retry loop: context cancellation
// is never retryable; a recognized status code decides by
// IsRetryableStatusCode; a network timeout is retryable; otherwise fall
// back to message-pattern matching for transport errors with no
// structured status (self-hosted backend quirks).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if code := ExtractHTTPStatusCode(err); code != 0 {
		return IsRetryableStatusCode(code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range nonRetryablePatterns {
		if strings.Contains(msg, p) {
			return false
		}
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
