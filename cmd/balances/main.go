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
	"flag"
	"fmt"
	"log"
	"os"

	"wallet-pool-go/internal/common"
	"wallet-pool-go/internal/config"
	"wallet-pool-go/internal/formance"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type balanceStats struct {
	totalUsers        int
	totalBalances     int
	usersWithBalances int
	ledgerMismatches  int
}

func formatTransactionId(txId string) string {
	if txId == "" {
		return "none"
	}
	if len(txId) > 8 {
		return txId[:8] + "..."
	}
	return txId
}

// ledgerReader is the Formance read used to cross-check the local subledger.
type ledgerReader interface {
	GetUserBalance(ctx context.Context, userId, asset string) (decimal.Decimal, error)
}

func balanceLine(balance models.AccountBalance) string {
	return fmt.Sprintf("%-15s: %20s (v%d, last_tx: %s, updated: %s)",
		balance.Asset,
		balance.Balance.String(),
		balance.Version,
		formatTransactionId(balance.LastTransactionId),
		balance.UpdatedAt.Format("2006-01-02 15:04:05"))
}

// ledgerCheck compares a balance with its Formance mirror. Reports false on mismatch or error.
func ledgerCheck(ctx context.Context, ledger ledgerReader, balance models.AccountBalance) (string, bool) {
	mirrored, err := ledger.GetUserBalance(ctx, balance.UserId, balance.Asset)
	if err != nil {
		return fmt.Sprintf("ledger: unavailable (%v)", err), false
	}
	if !mirrored.Equal(balance.Balance) {
		return fmt.Sprintf("ledger: %s (MISMATCH, mirror may be behind)", mirrored.String()), false
	}
	return fmt.Sprintf("ledger: %s ok", mirrored.String()), true
}

func printBalances(ctx context.Context, report *common.Report, balances []models.AccountBalance, ledger ledgerReader) int {
	mismatches := 0
	for i, balance := range balances {
		var details []string
		if ledger != nil {
			detail, ok := ledgerCheck(ctx, ledger, balance)
			if !ok {
				mismatches++
			}
			details = append(details, detail)
		}
		report.Item(i == len(balances)-1, balanceLine(balance), details...)
	}
	return mismatches
}

func processUser(ctx context.Context, report *common.Report, user common.UserInfo, users store.UserStore, ledger ledgerReader) (int, int, error) {
	balances, err := users.GetAllUserBalances(ctx, user.Id)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get balances: %w", err)
	}

	if len(balances) == 0 {
		return 0, 0, nil
	}

	report.Group(fmt.Sprintf("User: %s (%s)", user.Name, user.Email),
		"ID: "+user.Id,
		fmt.Sprintf("Assets: %d", len(balances)))
	mismatches := printBalances(ctx, report, balances, ledger)

	return len(balances), mismatches, nil
}

func processUsersAndGenerateReport(ctx context.Context, report *common.Report, users []common.UserInfo, userStore store.UserStore, ledger ledgerReader, logger *zap.Logger) balanceStats {
	stats := balanceStats{}

	for _, user := range users {
		stats.totalUsers++

		balanceCount, mismatches, err := processUser(ctx, report, user, userStore, ledger)
		if err != nil {
			logger.Error("Failed to process user",
				zap.String("user_id", user.Id),
				zap.String("user_name", user.Name),
				zap.Error(err))
			continue
		}

		if balanceCount > 0 {
			stats.usersWithBalances++
			stats.totalBalances += balanceCount
			stats.ledgerMismatches += mismatches
		}
	}

	return stats
}

func main() {
	ctx := context.Background()

	// Parse command line flags
	userFlag := flag.String("user", "", "Filter by specific user id (optional)")
	ledgerFlag := flag.Bool("ledger", false, "Cross-check every balance against the Formance ledger")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Logging)
	defer loggerCleanup()

	logger.Info("Starting balance query")

	// Read-only, so no oracle or loops
	logger.Info("Connecting to database", zap.String("driver", cfg.Database.Driver))
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	var ledger ledgerReader
	if *ledgerFlag {
		if cfg.Formance.StackURL == "" {
			logger.Fatal("--ledger requires FORMANCE_STACK_URL")
		}
		svc, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			logger.Fatal("Failed to connect to Formance", zap.Error(err))
		}
		ledger = svc
	}

	users, err := common.InitializeUsers(ctx, dbService, *userFlag, logger)
	if err != nil {
		logger.Fatal("Failed to initialize users", zap.Error(err))
	}

	report := common.NewReport(os.Stdout, common.ReportWidth)
	report.Title("USER BALANCE REPORT")

	stats := processUsersAndGenerateReport(ctx, report, users, dbService, ledger, logger)

	summary := fmt.Sprintf("SUMMARY: %d users with balances (%d total balances across %d users queried)",
		stats.usersWithBalances, stats.totalBalances, stats.totalUsers)
	if ledger != nil {
		summary += fmt.Sprintf(", %d ledger mismatches", stats.ledgerMismatches)
	}
	report.Close(summary)

	logger.Info("Balance query completed",
		zap.Int("users_queried", stats.totalUsers),
		zap.Int("users_with_balances", stats.usersWithBalances),
		zap.Int("total_balances", stats.totalBalances),
		zap.Int("ledger_mismatches", stats.ledgerMismatches))
}
