package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/prime"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DepositLister is the slice of the Prime client the oracle needs.
type DepositLister interface {
	ListDeposits(ctx context.Context, portfolioId, walletId string, startTime time.Time) ([]prime.Deposit, error)
}

// PrimeOracle reports deposits into pool addresses that belong to one Prime wallet.
type PrimeOracle struct {
	lister      DepositLister
	portfolioId string
	walletId    string
}

var _ ChainOracle = (*PrimeOracle)(nil)

func NewPrimeOracle(lister DepositLister, portfolioId, walletId string) *PrimeOracle {
	return &PrimeOracle{lister: lister, portfolioId: portfolioId, walletId: walletId}
}

func (o *PrimeOracle) FetchTransfers(ctx context.Context, resourceKey string, since time.Time) ([]models.Transfer, error) {
	deposits, err := o.lister.ListDeposits(ctx, o.portfolioId, o.walletId, since)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var out []models.Transfer
	for _, d := range deposits {
		if d.Address != resourceKey && d.AccountIdentifier != resourceKey {
			continue
		}
		amount, err := decimal.NewFromString(d.Amount)
		if err != nil {
			zap.L().Warn("Skipping deposit with invalid amount",
				zap.String("transaction_id", d.Id),
				zap.String("amount", d.Amount))
			continue
		}

		// Prime only reports a deposit as imported once it is final
		confirmations := 0
		if d.Status == prime.StatusImported {
			confirmations = solidifiedDepth
		}

		out = append(out, models.Transfer{
			ExternalRef:   d.Id,
			Amount:        amount,
			Confirmations: confirmations,
			Timestamp:     d.Created.UTC(),
			Asset:         normalizeSymbol(d.Symbol),
		})
	}
	return out, nil
}

// normalizeSymbol strips a network suffix: USDT-TRON -> USDT.
func normalizeSymbol(symbol string) string {
	if i := strings.Index(symbol, "-"); i > 0 {
		symbol = symbol[:i]
	}
	return strings.ToUpper(symbol)
}
