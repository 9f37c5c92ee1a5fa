package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"wallet-pool-go/internal/api"
	"wallet-pool-go/internal/database"
	"wallet-pool-go/internal/formance"
	"wallet-pool-go/internal/lease"
	"wallet-pool-go/internal/metrics"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/notify"
	"wallet-pool-go/internal/oracle"
	"wallet-pool-go/internal/pool"
	"wallet-pool-go/internal/prime"
	"wallet-pool-go/internal/reconcile"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const loopMirror = "mirror"

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService   *database.Service
	WalletPool  *pool.Pool
	ClaimPool   *pool.Pool
	Wallets     *lease.Manager
	Claims      *lease.Manager
	PoolService *api.PoolService
	Notifier    notify.Sink
	Metrics     *metrics.PoolMetrics
	Loops       []*reconcile.Loop
}

// InitializeLogger installs the global zap logger. With LOG_FILE set, output is
// teed to stderr and a rotated file.
func InitializeLogger(cfg models.LoggingConfig) (*zap.Logger, func()) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if cfg.File != "" {
		rotated := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zapCfg.EncoderConfig), rotated, zapCfg.Level)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices opens the store and wires pools, lease managers, the API
// service and every background loop. Loops are built but not started.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	m := metrics.Pool()
	notifier := buildNotifier(cfg.Notify)

	walletPool := pool.New(dbService, models.ResourceKindWallet)
	claimPool := pool.New(dbService, models.ResourceKindClaim)
	wallets := lease.NewManager(dbService, walletPool, m)
	claims := lease.NewManager(dbService, claimPool, m)

	chain, err := buildOracle(cfg)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	rc := reconcile.Config{
		LeaseTimeout: cfg.Reconciler.LeaseTimeout,
		GraceWindow:  cfg.Reconciler.GraceWindow,
		Workers:      cfg.Reconciler.Workers,
	}
	deposits := reconcile.NewDepositReconciler(dbService, wallets, chain, cfg.Pool, rc, notifier, m)
	claimReconciler := reconcile.NewClaimReconciler(dbService, claims, cfg.Pool, rc, notifier, m)
	healer := reconcile.NewHealer(dbService, cfg.Reconciler.OrphanGrace, notifier, m)

	loops := []*reconcile.Loop{
		reconcile.SweepLoop(deposits, cfg.Reconciler.DepositInterval, m),
		reconcile.SweepLoop(claimReconciler, cfg.Reconciler.ClaimInterval, m),
		healer.Loop(cfg.Reconciler.HealInterval),
	}

	if cfg.Formance.StackURL != "" {
		zap.L().Info("Connecting to Formance ledger",
			zap.String("stack_url", cfg.Formance.StackURL),
			zap.String("ledger", cfg.Formance.LedgerName))
		ledger, err := formance.NewService(ctx, cfg.Formance)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		mirror := formance.NewMirror(ledger, dbService, cfg.Formance.BatchSize, m)
		loops = append(loops, reconcile.NewLoop(loopMirror, cfg.Formance.MirrorInterval, func(ctx context.Context) error {
			_, err := mirror.Sweep(ctx)
			return err
		}, m))
	} else {
		zap.L().Info("Formance ledger mirror disabled")
	}

	poolService := api.NewPoolService(dbService, api.Pools{
		Wallets:    wallets,
		Claims:     claims,
		WalletPool: walletPool,
		ClaimPool:  claimPool,
	}, cfg.Pool, notifier, m)

	return &Services{
		DbService:   dbService,
		WalletPool:  walletPool,
		ClaimPool:   claimPool,
		Wallets:     wallets,
		Claims:      claims,
		PoolService: poolService,
		Notifier:    notifier,
		Metrics:     m,
		Loops:       loops,
	}, nil
}

// InitializeDatabaseOnly initializes just the database service without any backend
// Useful for read-only operations like querying balances
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// InitializePrime connects to Coinbase Prime with credentials from the environment.
func InitializePrime() (*prime.Service, error) {
	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		return nil, err
	}
	return prime.NewService(creds)
}

// StartLoops starts every loop; StopLoops stops them in reverse order.
func (cs *Services) StartLoops(ctx context.Context) {
	for _, l := range cs.Loops {
		l.Start(ctx)
	}
}

func (cs *Services) StopLoops() {
	for i := len(cs.Loops) - 1; i >= 0; i-- {
		cs.Loops[i].Stop()
	}
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func buildOracle(cfg *models.Config) (oracle.ChainOracle, error) {
	switch cfg.Oracle.Backend {
	case "tron":
		zap.L().Info("Using TronGrid chain oracle",
			zap.String("url", cfg.Oracle.TronApiUrl),
			zap.String("contract", cfg.Oracle.ContractAddress))
		return oracle.NewTronOracle(oracle.TronConfig{
			BaseURL:         cfg.Oracle.TronApiUrl,
			ApiKey:          cfg.Oracle.TronApiKey,
			ContractAddress: cfg.Oracle.ContractAddress,
			Symbol:          cfg.Pool.Asset,
			TokenDecimals:   int32(cfg.Oracle.TokenDecimals),
			RequestTimeout:  cfg.Oracle.RequestTimeout,
			RequestsPerSec:  cfg.Oracle.RequestsPerSec,
			Burst:           cfg.Oracle.Burst,
		}), nil
	case "prime":
		if cfg.Prime.PortfolioId == "" || cfg.Prime.WalletId == "" {
			return nil, fmt.Errorf("ORACLE_BACKEND=prime requires PRIME_PORTFOLIO_ID and PRIME_WALLET_ID")
		}
		primeService, err := InitializePrime()
		if err != nil {
			return nil, err
		}
		zap.L().Info("Using Coinbase Prime chain oracle",
			zap.String("portfolio_id", cfg.Prime.PortfolioId),
			zap.String("wallet_id", cfg.Prime.WalletId))
		return oracle.NewPrimeOracle(primeService, cfg.Prime.PortfolioId, cfg.Prime.WalletId), nil
	case "memory":
		zap.L().Warn("Using in-memory chain oracle, no real deposits will be seen")
		return oracle.NewMemoryOracle(), nil
	}
	return nil, fmt.Errorf("unsupported ORACLE_BACKEND %q", cfg.Oracle.Backend)
}

// buildNotifier always logs. Telegram and e-mail only receive warnings and alerts.
func buildNotifier(cfg models.NotifyConfig) notify.Sink {
	var remote notify.Multi
	if cfg.TelegramToken != "" && cfg.TelegramChatId != 0 {
		tg, err := notify.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatId)
		if err != nil {
			zap.L().Warn("Telegram notifications disabled", zap.Error(err))
		} else {
			remote = append(remote, tg)
		}
	}
	if cfg.SmtpHost != "" && cfg.EmailTo != "" {
		remote = append(remote, notify.NewEmailSink(notify.EmailConfig{
			Host:     cfg.SmtpHost,
			Port:     cfg.SmtpPort,
			Username: cfg.SmtpUser,
			Password: cfg.SmtpPassword,
			From:     cfg.EmailFrom,
			To:       splitList(cfg.EmailTo),
		}))
	}

	if len(remote) == 0 {
		return notify.LogSink{}
	}
	return notify.Multi{notify.LogSink{}, notify.MinLevel{Sink: remote, Level: notify.LevelWarn}}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
