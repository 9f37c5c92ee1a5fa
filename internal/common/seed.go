package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wallet-pool-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type WalletSeed struct {
	Network string `yaml:"network"`
	Address string `yaml:"address"`
}

type ClaimSeed struct {
	BankName      string `yaml:"bank_name"`
	AccountNumber string `yaml:"account_number"`
	IfscCode      string `yaml:"ifsc_code"`
	AccountHolder string `yaml:"account_holder"`
	Amount        string `yaml:"amount"`
}

// PoolSeed is the YAML layout read by the poolseed command.
type PoolSeed struct {
	Wallets []WalletSeed `yaml:"wallets"`
	Claims  []ClaimSeed  `yaml:"claims"`
}

func LoadPoolSeed(seedFile string) (*PoolSeed, error) {
	var seedPath string
	if filepath.IsAbs(seedFile) {
		seedPath = seedFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		seedPath = filepath.Join(wd, seedFile)
	}

	data, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", seedFile, err)
	}
	return ParsePoolSeed(data, seedFile)
}

func ParsePoolSeed(data []byte, name string) (*PoolSeed, error) {
	var seed PoolSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", name, err)
	}

	for i, w := range seed.Wallets {
		if strings.TrimSpace(w.Address) == "" {
			return nil, fmt.Errorf("wallet at index %d missing address", i)
		}
	}
	for i, c := range seed.Claims {
		if c.AccountNumber == "" || c.IfscCode == "" {
			return nil, fmt.Errorf("claim at index %d missing account_number or ifsc_code", i)
		}
		if _, err := c.Details(); err != nil {
			return nil, fmt.Errorf("claim at index %d: %w", i, err)
		}
	}

	return &seed, nil
}

// Details converts the seed entry into claim details.
func (c ClaimSeed) Details() (models.ClaimDetails, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Amount))
	if err != nil {
		return models.ClaimDetails{}, fmt.Errorf("invalid amount %q: %w", c.Amount, err)
	}
	if !amount.IsPositive() {
		return models.ClaimDetails{}, fmt.Errorf("amount must be positive, got %s", amount)
	}
	return models.ClaimDetails{
		BankName:      c.BankName,
		AccountNumber: c.AccountNumber,
		IfscCode:      c.IfscCode,
		AccountHolder: c.AccountHolder,
		Amount:        amount,
	}, nil
}
