/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"

	"wallet-pool-go/internal/lease"
	"wallet-pool-go/internal/metrics"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/notify"
	"wallet-pool-go/internal/pool"
	"wallet-pool-go/internal/store"
)

// PoolService exposes lease acquisition, status and administration to the HTTP layer
type PoolService struct {
	store      store.Store
	wallets    *lease.Manager
	claims     *lease.Manager
	walletPool *pool.Pool
	claimPool  *pool.Pool
	cfg        models.PoolConfig
	notifier   notify.Sink
	metrics    *metrics.PoolMetrics
}

type Pools struct {
	Wallets    *lease.Manager
	Claims     *lease.Manager
	WalletPool *pool.Pool
	ClaimPool  *pool.Pool
}

func NewPoolService(st store.Store, pools Pools, cfg models.PoolConfig, notifier notify.Sink, m *metrics.PoolMetrics) *PoolService {
	if notifier == nil {
		notifier = notify.LogSink{}
	}
	return &PoolService{
		store:      st,
		wallets:    pools.Wallets,
		claims:     pools.Claims,
		walletPool: pools.WalletPool,
		claimPool:  pools.ClaimPool,
		cfg:        cfg,
		notifier:   notifier,
		metrics:    m,
	}
}

func (s *PoolService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (s *PoolService) poolFor(kind models.ResourceKind) (*pool.Pool, error) {
	switch kind {
	case models.ResourceKindWallet:
		return s.walletPool, nil
	case models.ResourceKindClaim:
		return s.claimPool, nil
	}
	return nil, fmt.Errorf("%w: unknown resource kind %q", ErrInvalidRequest, kind)
}
