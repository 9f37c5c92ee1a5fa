package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wallet-pool-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MemoryOracle is an in-process chain for development and tests.
// Transfers are injected with the Simulate helpers.
type MemoryOracle struct {
	mu        sync.RWMutex
	transfers map[string][]models.Transfer
	failures  map[string]error
	calls     map[string]int
}

var _ ChainOracle = (*MemoryOracle)(nil)

func NewMemoryOracle() *MemoryOracle {
	return &MemoryOracle{
		transfers: make(map[string][]models.Transfer),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (m *MemoryOracle) FetchTransfers(ctx context.Context, resourceKey string, since time.Time) ([]models.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	m.mu.Lock()
	m.calls[resourceKey]++
	err := m.failures[resourceKey]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Transfer
	for _, t := range m.transfers[resourceKey] {
		if t.Timestamp.Before(since) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// SimulateTransfer records an incoming transfer to resourceKey.
func (m *MemoryOracle) SimulateTransfer(resourceKey string, t models.Transfer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transfers[resourceKey] = append(m.transfers[resourceKey], t)
	zap.L().Info("Simulated incoming transfer",
		zap.String("resource_key", resourceKey),
		zap.String("external_ref", t.ExternalRef),
		zap.String("amount", t.Amount.String()))
}

// SimulateDeposit records a fully confirmed transfer of amount asset at ts.
func (m *MemoryOracle) SimulateDeposit(resourceKey, ref, asset string, amount decimal.Decimal, ts time.Time) {
	m.SimulateTransfer(resourceKey, models.Transfer{
		ExternalRef:   ref,
		Amount:        amount,
		Confirmations: solidifiedDepth,
		Timestamp:     ts,
		Asset:         asset,
	})
}

// SimulateOutage makes every fetch for resourceKey fail with err until cleared with nil.
func (m *MemoryOracle) SimulateOutage(resourceKey string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, resourceKey)
		return
	}
	m.failures[resourceKey] = err
}

// Calls returns how many times resourceKey was queried.
func (m *MemoryOracle) Calls(resourceKey string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[resourceKey]
}
