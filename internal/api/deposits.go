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
	"errors"
	"fmt"

	"wallet-pool-go/internal/lease"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/notify"
	"wallet-pool-go/internal/store"

	"go.uber.org/zap"
)

// ErrInvalidRequest marks caller input errors
var ErrInvalidRequest = errors.New("invalid request")

// RequestDepositAddress leases a receive address to userId, or returns the one it already holds
func (s *PoolService) RequestDepositAddress(ctx context.Context, userId string) (*models.DepositAddress, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}

	acq, err := s.wallets.AcquireOrReuse(ctx, lease.AcquireRequest{
		HolderId:       userId,
		Duration:       s.cfg.LeaseDuration,
		ReuseThreshold: s.cfg.ReuseThreshold,
	})
	if err != nil {
		if errors.Is(err, store.ErrResourceExhausted) {
			s.reportExhausted(ctx, models.ResourceKindWallet, userId)
		}
		return nil, err
	}

	return &models.DepositAddress{
		ResourceKey: acq.Lease.ResourceKey,
		Network:     acq.Resource.Network,
		Asset:       s.cfg.Asset,
		LeaseId:     acq.Lease.Id,
		ExpiresAt:   acq.Lease.ExpiresAt,
		Reused:      acq.Reused,
	}, nil
}

// CheckDepositStatus reports the state of a deposit lease to its holder.
func (s *PoolService) CheckDepositStatus(ctx context.Context, leaseId, userId string) (*models.DepositStatus, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	l, err := s.wallets.Get(ctx, leaseId, userId)
	if err != nil {
		return nil, err
	}

	status := &models.DepositStatus{
		LeaseId:     l.Id,
		ResourceKey: l.ResourceKey,
		Active:      l.Active,
		Fulfilled:   l.Outcome == models.LeaseOutcomeFulfilled,
		Outcome:     l.Outcome,
		ExpiresAt:   l.ExpiresAt,
	}
	if status.Fulfilled {
		if status.CreditEvent, err = s.store.GetCreditForLease(ctx, l.Id); err != nil {
			return nil, err
		}
	}
	return status, nil
}

func (s *PoolService) reportExhausted(ctx context.Context, kind models.ResourceKind, userId string) {
	zap.L().Warn("Pool exhausted",
		zap.String("kind", string(kind)),
		zap.String("user_id", userId))
	err := s.notifier.Notify(ctx, notify.Notification{
		Level: notify.LevelWarn,
		Title: "Pool exhausted",
		Fields: map[string]string{
			"kind":    string(kind),
			"user_id": userId,
		},
	})
	if err != nil {
		zap.L().Warn("Failed to deliver notification", zap.Error(err))
	}
}
