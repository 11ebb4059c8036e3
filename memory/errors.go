package memory

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy for the engine. Callers match with errors.Is; every
// exported operation returns one of these (wrapped) or nil.
var (
	// ErrProviderTimeout marks a bounded-timeout expiry on a call to
	// the embedding provider or completion API. Recovered locally by
	// degrading to buffer-only context.
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrProviderAuth marks an authentication failure against a
	// provider. Fatal for the long-term tier only; the window keeps
	// working.
	ErrProviderAuth = errors.New("provider auth failure")

	// ErrStoreUnavailable marks an unreachable vector store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidInput marks caller errors such as empty content.
	// Rejected synchronously, never degraded around.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCapacityExceeded marks a hard limit with no eviction possible.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)

// Retryable reports whether the operation that produced err may
// succeed if repeated later.
func Retryable(err error) bool {
	return errors.Is(err, ErrProviderTimeout) || errors.Is(err, ErrStoreUnavailable)
}

// asProviderErr maps context expiry onto the typed timeout error so
// callers never have to match context.DeadlineExceeded themselves.
// Already-typed errors pass through unchanged.
func asProviderErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}
	return err
}
