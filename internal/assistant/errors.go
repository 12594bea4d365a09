// Package assistant adapts the OpenAI Assistants API as the session
// backend: threads are sessions, runs produce replies.
package assistant

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind classifies backend failures so that core logic never inspects
// error message strings.
type ErrorKind int

const (
	// KindTransient covers rate limits, 5xx responses and transport
	// failures; the operation may succeed if retried or worked around.
	KindTransient ErrorKind = iota
	// KindNotFound means the referenced session no longer exists.
	KindNotFound
	// KindFatal covers auth and request errors that retrying cannot fix.
	KindFatal
)

// Classify maps an error from the OpenAI client to an ErrorKind.
// The decision is made here, at the adapter boundary, from HTTP status
// codes rather than message text.
func Classify(err error) ErrorKind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}
	// Network-level errors: no response at all.
	return KindTransient
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return KindTransient
	default:
		return KindFatal
	}
}

// IsNotFound reports whether err means the session is gone on the backend.
func IsNotFound(err error) bool {
	return err != nil && Classify(err) == KindNotFound
}

// RunError is a run that terminated without producing a reply. The run is
// not resumable; callers report a failure instead of retrying.
type RunError struct {
	Status RunStatus
	Detail string
}

func (e *RunError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("assistant run %s", e.Status)
	}
	return fmt.Sprintf("assistant run %s: %s", e.Status, e.Detail)
}

// TimeoutError is a run that exceeded the configured wait budget. The run
// has already been cancelled best-effort when this is returned.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("assistant run timed out after %s", e.After)
}
