package models

import "time"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig
	Pool       PoolConfig
	Reconciler ReconcilerConfig
	Oracle     OracleConfig
	Prime      PrimeConfig
	Formance   FormanceConfig
	Notify     NotifyConfig
	Server     ServerConfig
	Logging    LoggingConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // sqlite3 or postgres
	Path            string // sqlite file path or postgres DSN
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// PoolConfig holds lease sizing and the asset accepted on each pool
type PoolConfig struct {
	Asset            string
	Network          string
	MinConfirmations int
	LeaseDuration    time.Duration
	ReuseThreshold   time.Duration
	ClaimDuration    time.Duration
	ClaimAsset       string
}

// ReconcilerConfig holds background loop settings
type ReconcilerConfig struct {
	DepositInterval time.Duration
	ClaimInterval   time.Duration
	LeaseTimeout    time.Duration
	GraceWindow     time.Duration
	Workers         int
	OrphanGrace     time.Duration
	HealInterval    time.Duration
}

// OracleConfig selects and configures the chain oracle backend
type OracleConfig struct {
	Backend         string // tron, prime or memory
	TronApiUrl      string
	TronApiKey      string
	ContractAddress string
	TokenDecimals   int
	RequestTimeout  time.Duration
	RequestsPerSec  float64
	Burst           int
}

// PrimeConfig holds Coinbase Prime settings for the prime oracle backend
type PrimeConfig struct {
	PortfolioId string
	WalletId    string
}

// FormanceConfig holds Formance ledger mirror settings. Empty StackURL disables the mirror.
type FormanceConfig struct {
	StackURL       string
	ClientID       string
	ClientSecret   string
	LedgerName     string
	MirrorInterval time.Duration
	BatchSize      int
}

// NotifyConfig holds operator notification channels
type NotifyConfig struct {
	TelegramToken  string
	TelegramChatId int64
	SmtpHost       string
	SmtpPort       int
	SmtpUser       string
	SmtpPassword   string
	EmailFrom      string
	EmailTo        string
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	ListenAddr        string
	AdminToken        string
	RequestsPerMinute int
	Burst             int
	QrSize            int
	StreamInterval    time.Duration
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}
