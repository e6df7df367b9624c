package retry

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPError carries the status code of a failed HTTP request so call sites
// can decide between retrying and giving up.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// MalformedResponseError marks a remote response that arrived but could not
// be decoded. Retried within the attempt budget, then the caller degrades to
// its deterministic fallback.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed remote response: " + e.Reason
}

// Provider-reported conditions that indicate a transient failure.
var transientMarkers = []string{
	"429",
	"500",
	"502",
	"503",
	"504",
	"UNAVAILABLE",
	"RESOURCE_EXHAUSTED",
	"DEADLINE_EXCEEDED",
	"timeout",
	"connection reset",
}

// Permanent conditions that must never be retried.
var permanentMarkers = []string{
	"API key not valid",
	"invalid api key",
	"INVALID_ARGUMENT",
}

// Transient classifies errors into retryable and permanent. HTTP status
// codes win over string matching when available.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return true
		default:
			return false
		}
	}

	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return true
	}

	msg := err.Error()
	for _, marker := range permanentMarkers {
		if strings.Contains(strings.ToLower(msg), strings.ToLower(marker)) {
			return false
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
