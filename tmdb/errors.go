package tmdb

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("tmdb: not found")
	ErrUnauthorized = errors.New("tmdb: authentication failed")
	ErrRateLimited  = errors.New("tmdb: rate limit exceeded")
)

const (
	CodeNotFound    = "NOT_FOUND"
	CodeAuthFailed  = "AUTH_FAILED"
	CodeRateLimited = "RATE_LIMITED"
	CodeUnavailable = "UNAVAILABLE"
	CodeUnknown     = "UNKNOWN"
)

// Error is returned for every failed call to the metadata source.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match on the sentinel for the error's code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == CodeNotFound
	case ErrUnauthorized:
		return e.Code == CodeAuthFailed
	case ErrRateLimited:
		return e.Code == CodeRateLimited
	}
	return false
}

// mapError classifies an error from the go-tmdb client. The library only
// exposes the status through the error text.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key"):
		return &Error{Code: CodeAuthFailed, Message: "tmdb authentication failed", Err: err}
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found") || strings.Contains(msg, "could not be found"):
		return &Error{Code: CodeNotFound, Message: "tmdb resource not found", Err: err}
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return &Error{Code: CodeRateLimited, Message: "tmdb rate limit exceeded", Err: err}
	case strings.Contains(msg, "503") || strings.Contains(msg, "unavailable"):
		return &Error{Code: CodeUnavailable, Message: "tmdb service unavailable", Err: err}
	}
	return &Error{Code: CodeUnknown, Message: "tmdb request failed", Err: err}
}
