// Package oracle reports confirmed incoming transfers to pool addresses.
package oracle

import (
	"context"
	"errors"
	"time"

	"wallet-pool-go/internal/models"
)

// ErrTransient wraps network, timeout, throttling and upstream 5xx failures.
// Callers treat it as "no new information" and retry on the next sweep.
var ErrTransient = errors.New("oracle temporarily unavailable")

// ChainOracle is a read-only view of incoming transfers.
type ChainOracle interface {
	// FetchTransfers lists transfers into resourceKey at or after since.
	FetchTransfers(ctx context.Context, resourceKey string, since time.Time) ([]models.Transfer, error)
}

// IsTransient reports whether err should be retried on the next sweep.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}
