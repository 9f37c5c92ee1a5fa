package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"wallet-pool-go/internal/common"
	"wallet-pool-go/internal/config"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/pool"

	"go.uber.org/zap"
)

type inventoryStats struct {
	byState map[models.ResourceState]int
	total   int
}

func printResource(report *common.Report, r models.PoolResource, isLast bool) {
	lastUsed := "never"
	if r.UsageCount > 0 {
		lastUsed = r.LastUsedAt.Format("2006-01-02 15:04:05")
	}
	line := fmt.Sprintf("%-9s %-44s uses: %-4d credited: %-14s last used: %s",
		r.State, r.ResourceKey, r.UsageCount, r.CumulativeCredited.String(), lastUsed)

	details := []string{"ID: " + r.Id}
	if r.Claim != nil {
		details = append(details, fmt.Sprintf("Bank: %s / %s (%s) amount %s",
			r.Claim.BankName, r.Claim.AccountNumber, r.Claim.IfscCode, r.Claim.Amount.String()))
	}
	report.Item(isLast, line, details...)
}

func printInventory(report *common.Report, kind models.ResourceKind, resources []models.PoolResource) inventoryStats {
	stats := inventoryStats{byState: make(map[models.ResourceState]int)}

	report.Group(fmt.Sprintf("%s pool", kind), fmt.Sprintf("Resources: %d", len(resources)))
	for i, r := range resources {
		printResource(report, r, i == len(resources)-1)
		stats.byState[r.State]++
		stats.total++
	}
	return stats
}

func main() {
	ctx := context.Background()

	kindFlag := flag.String("kind", "WALLET", "Resource kind: WALLET or CLAIM")
	stateFlag := flag.String("state", "", "Filter by state: AVAILABLE, LEASED or DISABLED (optional)")
	disableFlag := flag.String("disable", "", "Disable the resource with this id")
	enableFlag := flag.String("enable", "", "Re-enable the resource with this id")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, loggerCleanup := common.InitializeLogger(cfg.Logging)
	defer loggerCleanup()

	kind := models.ResourceKind(strings.ToUpper(*kindFlag))
	if !kind.Valid() {
		logger.Fatal("Invalid resource kind", zap.String("kind", *kindFlag))
	}

	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	p := pool.New(dbService, kind)

	switch {
	case *disableFlag != "":
		r, err := p.Disable(ctx, *disableFlag)
		if err != nil {
			logger.Fatal("Failed to disable resource", zap.String("id", *disableFlag), zap.Error(err))
		}
		fmt.Printf("✓ %s %s is now %s\n", r.Kind, r.ResourceKey, r.State)
		return
	case *enableFlag != "":
		r, err := p.Enable(ctx, *enableFlag)
		if err != nil {
			logger.Fatal("Failed to enable resource", zap.String("id", *enableFlag), zap.Error(err))
		}
		fmt.Printf("✓ %s %s is now %s\n", r.Kind, r.ResourceKey, r.State)
		return
	}

	resources, err := p.List(ctx, models.ResourceState(strings.ToUpper(*stateFlag)))
	if err != nil {
		logger.Fatal("Failed to list resources", zap.Error(err))
	}

	report := common.NewReport(os.Stdout, common.WideReportWidth)
	report.Title("POOL INVENTORY REPORT")
	stats := printInventory(report, kind, resources)

	summary := fmt.Sprintf("SUMMARY: %d resources (%d available, %d leased, %d disabled)",
		stats.total,
		stats.byState[models.ResourceStateAvailable],
		stats.byState[models.ResourceStateLeased],
		stats.byState[models.ResourceStateDisabled])
	report.Close(summary)
}
