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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"wallet-pool-go/internal/common"
	"wallet-pool-go/internal/config"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/pool"
	"wallet-pool-go/internal/prime"
	"wallet-pool-go/internal/store"

	"go.uber.org/zap"
)

const seedCreator = "poolseed"

type seedStats struct {
	added    int
	existing int
	failed   []string
}

func (s *seedStats) record(label string, err error) {
	switch {
	case err == nil:
		s.added++
		fmt.Printf("✓ %s\n", label)
	case errors.Is(err, store.ErrDuplicateResource):
		s.existing++
		fmt.Printf("✓ %s: already in pool\n", label)
	default:
		s.failed = append(s.failed, label)
		zap.L().Error("Failed to add resource", zap.String("resource", label), zap.Error(err))
		fmt.Printf("✗ %s: %v\n", label, err)
	}
}

func importWallets(ctx context.Context, wallets *pool.Pool, seed []common.WalletSeed, defaultNetwork string, stats *seedStats) {
	for _, w := range seed {
		network := w.Network
		if network == "" {
			network = defaultNetwork
		}
		_, err := wallets.AddWallet(ctx, network, w.Address, seedCreator)
		stats.record(fmt.Sprintf("wallet %s-%s", network, w.Address), err)
	}
}

func importClaims(ctx context.Context, claims *pool.Pool, seed []common.ClaimSeed, stats *seedStats) {
	for _, c := range seed {
		label := fmt.Sprintf("claim %s/%s %s", c.IfscCode, c.AccountNumber, c.Amount)
		details, err := c.Details()
		if err != nil {
			stats.record(label, err)
			continue
		}
		_, err = claims.AddClaim(ctx, details, seedCreator)
		stats.record(label, err)
	}
}

// resolvePrimeWallet falls back to the Default Portfolio and its first trading
// wallet for the pool asset when ids are not configured.
func resolvePrimeWallet(ctx context.Context, primeService *prime.Service, cfg *models.Config) (string, string, error) {
	portfolioId, walletId := cfg.Prime.PortfolioId, cfg.Prime.WalletId
	if portfolioId == "" {
		zap.L().Info("Finding default portfolio")
		portfolio, err := primeService.FindDefaultPortfolio(ctx)
		if err != nil {
			return "", "", err
		}
		zap.L().Info("Using default portfolio",
			zap.String("name", portfolio.Name),
			zap.String("id", portfolio.Id))
		portfolioId = portfolio.Id
	}
	if walletId == "" {
		wallets, err := primeService.ListWallets(ctx, portfolioId, "TRADING", []string{cfg.Pool.Asset})
		if err != nil {
			return "", "", err
		}
		if len(wallets) == 0 {
			return "", "", fmt.Errorf("no %s trading wallet in portfolio %s", cfg.Pool.Asset, portfolioId)
		}
		zap.L().Info("Using existing wallet",
			zap.String("asset", cfg.Pool.Asset),
			zap.String("wallet_name", wallets[0].Name),
			zap.String("wallet_id", wallets[0].Id))
		walletId = wallets[0].Id
	}
	return portfolioId, walletId, nil
}

// generateWallets provisions fresh receive addresses through Prime and adds them to the pool.
func generateWallets(ctx context.Context, cfg *models.Config, wallets *pool.Pool, count int, stats *seedStats) {
	primeService, err := common.InitializePrime()
	if err != nil {
		zap.L().Fatal("Failed to initialize Prime client", zap.Error(err))
	}
	portfolioId, walletId, err := resolvePrimeWallet(ctx, primeService, cfg)
	if err != nil {
		zap.L().Fatal("Failed to resolve Prime wallet", zap.Error(err))
	}

	for i := 0; i < count; i++ {
		address, err := primeService.CreateDepositAddress(ctx, portfolioId, walletId, cfg.Pool.Network)
		if err != nil {
			stats.record(fmt.Sprintf("generated wallet #%d", i+1), err)
			continue
		}
		_, err = wallets.AddWallet(ctx, cfg.Pool.Network, address, seedCreator)
		stats.record(fmt.Sprintf("wallet %s-%s", cfg.Pool.Network, address), err)
	}
}

func main() {
	ctx := context.Background()

	fileFlag := flag.String("file", "pool.yaml", "YAML seed file with wallets and claims")
	generateFlag := flag.Int("generate", 0, "Also create this many new receive addresses through Coinbase Prime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	_, loggerCleanup := common.InitializeLogger(cfg.Logging)
	defer loggerCleanup()

	seed := &common.PoolSeed{}
	if *fileFlag != "" {
		zap.L().Info("Loading pool seed", zap.String("file", *fileFlag))
		if seed, err = common.LoadPoolSeed(*fileFlag); err != nil {
			zap.L().Fatal("Failed to load pool seed", zap.Error(err))
		}
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	wallets := pool.New(dbService, models.ResourceKindWallet)
	claims := pool.New(dbService, models.ResourceKindClaim)

	stats := &seedStats{}
	importWallets(ctx, wallets, seed.Wallets, cfg.Pool.Network, stats)
	importClaims(ctx, claims, seed.Claims, stats)
	if *generateFlag > 0 {
		generateWallets(ctx, cfg, wallets, *generateFlag, stats)
	}

	report := common.NewReport(os.Stdout, common.ReportWidth)
	report.Title("POOL SEED SUMMARY")
	report.Field("Added", stats.added)
	report.Field("Already present", stats.existing)
	report.Field("Failed", len(stats.failed))
	report.Rule()

	if len(stats.failed) > 0 {
		zap.L().Warn("Pool seed completed with failures",
			zap.Int("added", stats.added),
			zap.Strings("failed", stats.failed))
		return
	}
	zap.L().Info("Pool seed completed", zap.Int("added", stats.added), zap.Int("existing", stats.existing))
}
