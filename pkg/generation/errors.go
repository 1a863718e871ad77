package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrGenerationFailed = errors.New("generation failed")
	ErrMalformedOutput  = errors.New("malformed output")
	ErrEmptyResponse    = errors.New("empty response")
)

// GenerationError is returned when all attempts are used up.
//
//nolint:errname // established name
type GenerationError struct {
	Attempts int
	Last     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrGenerationFailed, e.Attempts, e.Last)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailed, e.Last}
}

func isParseFailure(err error) bool {
	return errors.Is(err, ErrMalformedOutput) || errors.Is(err, ErrEmptyResponse)
}

// isTimeout reports whether err looks like an overloaded or slow backend.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "504")
}
