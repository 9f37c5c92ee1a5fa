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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"wallet-pool-go/internal/models"
)

// usdtTronContract is the TRC20 USDT contract on Tron mainnet.
const usdtTronContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

func Load() (*models.Config, error) {
	var (
		connMaxLifetime, connMaxIdleTime, pingTimeout time.Duration
		leaseDuration, reuseThreshold, claimDuration  time.Duration
		depositInterval, claimInterval, leaseTimeout  time.Duration
		graceWindow, orphanGrace, healInterval        time.Duration
		oracleTimeout, mirrorInterval, streamInterval time.Duration
	)
	specs := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"DB_CONN_MAX_LIFETIME", 5 * time.Minute, &connMaxLifetime},
		{"DB_CONN_MAX_IDLE_TIME", 30 * time.Second, &connMaxIdleTime},
		{"DB_PING_TIMEOUT", 5 * time.Second, &pingTimeout},
		{"LEASE_DURATION", 30 * time.Minute, &leaseDuration},
		{"LEASE_REUSE_THRESHOLD", 2 * time.Minute, &reuseThreshold},
		{"CLAIM_DURATION", 15 * time.Minute, &claimDuration},
		{"RECONCILE_DEPOSIT_INTERVAL", 5 * time.Second, &depositInterval},
		{"RECONCILE_CLAIM_INTERVAL", 5 * time.Second, &claimInterval},
		{"RECONCILE_LEASE_TIMEOUT", 10 * time.Second, &leaseTimeout},
		{"RECONCILE_GRACE_WINDOW", 0, &graceWindow},
		{"RECONCILE_ORPHAN_GRACE", 2 * time.Minute, &orphanGrace},
		{"RECONCILE_HEAL_INTERVAL", time.Minute, &healInterval},
		{"ORACLE_REQUEST_TIMEOUT", 10 * time.Second, &oracleTimeout},
		{"FORMANCE_MIRROR_INTERVAL", 30 * time.Second, &mirrorInterval},
		{"SERVER_STREAM_INTERVAL", 3 * time.Second, &streamInterval},
	}
	for _, s := range specs {
		d, err := getEnvDuration(s.key, s.def)
		if err != nil {
			return nil, err
		}
		*s.dest = d
	}

	requestsPerSec, err := getEnvFloat("ORACLE_REQUESTS_PER_SEC", 5)
	if err != nil {
		return nil, err
	}

	chatId, err := getEnvInt64("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}

	driver := getEnvString("DB_DRIVER", "sqlite3")
	defaultConns := 25
	if driver == "sqlite3" {
		defaultConns = 1
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Driver:          driver,
			Path:            getEnvString("DATABASE_PATH", "pool.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", defaultConns),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 1),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
		},
		Pool: models.PoolConfig{
			Asset:            getEnvString("POOL_ASSET", "USDT"),
			Network:          getEnvString("POOL_NETWORK", "tron"),
			MinConfirmations: getEnvInt("MIN_CONFIRMATIONS", 1),
			LeaseDuration:    leaseDuration,
			ReuseThreshold:   reuseThreshold,
			ClaimDuration:    claimDuration,
			ClaimAsset:       getEnvString("CLAIM_ASSET", "USDT"),
		},
		Reconciler: models.ReconcilerConfig{
			DepositInterval: depositInterval,
			ClaimInterval:   claimInterval,
			LeaseTimeout:    leaseTimeout,
			GraceWindow:     graceWindow,
			Workers:         getEnvInt("RECONCILE_WORKERS", 4),
			OrphanGrace:     orphanGrace,
			HealInterval:    healInterval,
		},
		Oracle: models.OracleConfig{
			Backend:         getEnvString("ORACLE_BACKEND", "tron"),
			TronApiUrl:      getEnvString("TRON_API_URL", "https://api.trongrid.io"),
			TronApiKey:      getEnvString("TRON_API_KEY", ""),
			ContractAddress: getEnvString("USDT_CONTRACT_ADDRESS", usdtTronContract),
			TokenDecimals:   getEnvInt("TOKEN_DECIMALS", 6),
			RequestTimeout:  oracleTimeout,
			RequestsPerSec:  requestsPerSec,
			Burst:           getEnvInt("ORACLE_BURST", 5),
		},
		Prime: models.PrimeConfig{
			PortfolioId: getEnvString("PRIME_PORTFOLIO_ID", ""),
			WalletId:    getEnvString("PRIME_WALLET_ID", ""),
		},
		Formance: models.FormanceConfig{
			StackURL:       getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:       getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret:   getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:     getEnvString("FORMANCE_LEDGER", "wallet-pool"),
			MirrorInterval: mirrorInterval,
			BatchSize:      getEnvInt("FORMANCE_BATCH_SIZE", 50),
		},
		Notify: models.NotifyConfig{
			TelegramToken:  getEnvString("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatId: chatId,
			SmtpHost:       getEnvString("SMTP_HOST", ""),
			SmtpPort:       getEnvInt("SMTP_PORT", 587),
			SmtpUser:       getEnvString("SMTP_USER", ""),
			SmtpPassword:   getEnvString("SMTP_PASSWORD", ""),
			EmailFrom:      getEnvString("NOTIFY_EMAIL_FROM", ""),
			EmailTo:        getEnvString("NOTIFY_EMAIL_TO", ""),
		},
		Server: models.ServerConfig{
			ListenAddr:        getEnvString("LISTEN_ADDR", ":8080"),
			AdminToken:        getEnvString("ADMIN_TOKEN", ""),
			RequestsPerMinute: getEnvInt("API_REQUESTS_PER_MINUTE", 60),
			Burst:             getEnvInt("API_BURST", 10),
			QrSize:            getEnvInt("QR_SIZE", 256),
			StreamInterval:    streamInterval,
		},
		Logging: models.LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			File:       getEnvString("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	if cfg.Database.Driver != "sqlite3" && cfg.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	if cfg.Pool.LeaseDuration <= 0 {
		return fmt.Errorf("LEASE_DURATION must be positive, got %v", cfg.Pool.LeaseDuration)
	}
	if cfg.Pool.ReuseThreshold < 0 || cfg.Pool.ReuseThreshold >= cfg.Pool.LeaseDuration {
		return fmt.Errorf("LEASE_REUSE_THRESHOLD must be in [0, LEASE_DURATION), got %v", cfg.Pool.ReuseThreshold)
	}
	if cfg.Reconciler.GraceWindow < 0 {
		return fmt.Errorf("RECONCILE_GRACE_WINDOW cannot be negative, got %v", cfg.Reconciler.GraceWindow)
	}
	if cfg.Reconciler.LeaseTimeout <= 0 {
		return fmt.Errorf("RECONCILE_LEASE_TIMEOUT must be positive, got %v", cfg.Reconciler.LeaseTimeout)
	}
	if cfg.Pool.MinConfirmations < 0 {
		return fmt.Errorf("MIN_CONFIRMATIONS cannot be negative, got %d", cfg.Pool.MinConfirmations)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	if value := os.Getenv(key); value != "" {
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %q (%w)", key, value, err)
		}
		return v, nil
	}
	return defaultValue, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	if value := os.Getenv(key); value != "" {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %q (%w)", key, value, err)
		}
		return v, nil
	}
	return defaultValue, nil
}
