package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrorsSurviveWrapping(t *testing.T) {
	sentinels := []error{
		ErrResourceExhausted,
		ErrLeaseNotFound,
		ErrUnauthorized,
		ErrDuplicateCredit,
		ErrInvariantViolation,
		ErrLeaseInactive,
		ErrSettlementPending,
	}

	for _, sentinel := range sentinels {
		wrapped := fmt.Errorf("lease 42: %w", sentinel)
		if !errors.Is(wrapped, sentinel) {
			t.Errorf("errors.Is lost %v through wrapping", sentinel)
		}
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	if errors.Is(ErrLeaseNotFound, ErrUnauthorized) {
		t.Error("lease-not-found must not match unauthorized")
	}
	if errors.Is(ErrDuplicateCredit, ErrDuplicateResource) {
		t.Error("duplicate credit must not match duplicate resource")
	}

	// Ensure the interfaces are non-nil types.
	var _ Store
	var _ Tx
}
