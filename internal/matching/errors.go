package matching

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSignalNotFound indicates the referenced signal does not exist.
	ErrSignalNotFound = errors.New("signal not found")
	// ErrInvalidInput indicates the caller supplied an unusable request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreTimeout indicates a store call exceeded its deadline. Retryable.
	ErrStoreTimeout = errors.New("store timeout")
	// ErrStoreUnavailable indicates a store call failed for any other reason. Retryable.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// IsRetryable reports whether err is a transient store failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreTimeout) || errors.Is(err, ErrStoreUnavailable)
}

func storeError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrStoreTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}
