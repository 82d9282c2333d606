package stt

import (
	"errors"
	"fmt"
)

// ErrFileTooLarge is returned when the backend rejects a clip for exceeding
// its per-request size ceiling (HTTP 413). The batch chunker treats it
// differently from generic failures: it shrinks the segment and retries.
var ErrFileTooLarge = errors.New("audio clip exceeds the backend size limit")

// SetupError is a fatal error starting a session: missing or rejected
// credential, misconfigured endpoint. Not retried inside the pipeline.
type SetupError struct {
	Message string
}

func (e *SetupError) Error() string {
	if e.Message == "" {
		return "session setup failed"
	}
	return e.Message
}

// ConnectionError reports a socket-level failure on an open session. It is
// terminal for that session; retry policy belongs to the caller.
type ConnectionError struct {
	Message string
}

func (e *ConnectionError) Error() string {
	if e.Message == "" {
		return "streaming connection failed"
	}
	return e.Message
}

// APIError is returned for non-2xx responses from the batch endpoint that
// are not covered by a more specific error.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transcription API error (%d): %s", e.Status, e.Message)
}

// IsTransient reports whether a batch error is worth retrying. Size
// rejections and client errors are not; rate limits and server errors are.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrFileTooLarge) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	var setupErr *SetupError
	return !errors.As(err, &setupErr)
}
