package embeddings

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnavailable indicates no embedding provider is reachable.
	ErrUnavailable = errors.New("no embedding provider available")

	// ErrEmbeddingFailed indicates embedding generation failure.
	// Every *Error matches it with errors.Is.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// ErrorKind classifies a provider failure for retry decisions.
type ErrorKind int

const (
	// ErrorKindPermanent failures are surfaced immediately.
	ErrorKindPermanent ErrorKind = iota
	// ErrorKindTransient failures (network, 5xx, crashed model runner) are retried.
	ErrorKindTransient
	// ErrorKindContextTooLong means the model rejected the input size.
	// Retrying the same text never helps; only a shorter text can succeed.
	ErrorKindContextTooLong
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransient:
		return "transient"
	case ErrorKindContextTooLong:
		return "context_too_long"
	default:
		return "permanent"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind       ErrorKind
	Op         string // provider endpoint, e.g. "ollama.embeddings"
	StatusCode int    // 0 for transport failures
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrEmbeddingFailed.
func (e *Error) Is(target error) bool {
	return target == ErrEmbeddingFailed
}

// KindOf returns the kind of the first *Error in err's chain.
// Errors that were never classified are permanent.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindPermanent
}

// IsTransient reports whether err is worth retrying unchanged.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == ErrorKindTransient
}

// IsContextTooLong reports whether err is a context-length rejection.
func IsContextTooLong(err error) bool {
	return err != nil && KindOf(err) == ErrorKindContextTooLong
}

// IsProviderFailure reports whether err points at the provider itself
// rather than the input: the request never got an answer, or the server
// failed with a 5xx. Failures the provider does not retry count too.
func IsProviderFailure(err error) bool {
	var e *Error
	if !errors.As(err, &e) || e.Kind == ErrorKindContextTooLong {
		return false
	}
	return e.Kind == ErrorKindTransient || e.StatusCode == 0 || e.StatusCode >= 500
}

var (
	contextLengthMarkers = []string{
		"context length",
		"context_length",
		"context window",
		"input length",
		"too many tokens",
		"input is too long",
		"maximum context",
	}
	runnerCrashMarkers = []string{
		"no longer running",
		"unexpectedly stopped",
		"connection refused",
		"eof",
	}
)

// classifyStatus maps an unsuccessful HTTP response to an error kind.
// The provider's message is consulted first: Ollama reports context
// overflow as a 500, which must not be retried.
func classifyStatus(status int, message string) ErrorKind {
	msg := strings.ToLower(message)
	for _, m := range contextLengthMarkers {
		if strings.Contains(msg, m) {
			return ErrorKindContextTooLong
		}
	}
	if status >= 500 || status == 429 {
		return ErrorKindTransient
	}
	for _, m := range runnerCrashMarkers {
		if strings.Contains(msg, m) {
			return ErrorKindTransient
		}
	}
	return ErrorKindPermanent
}
