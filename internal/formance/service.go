package formance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"wallet-pool-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// assetPrecision maps canonical asset symbols to their decimal precision.
var assetPrecision = map[string]int{
	"USD":  2,
	"INR":  2,
	"USDC": 6,
	"USDT": 6,
	"BTC":  8,
	"ETH":  18,
	"TRX":  6,
	"TON":  9,
}

// numscriptCredit moves a credited amount from the pool inbound account to the user.
// Every credit event becomes exactly one ledger transaction keyed by its external reference.
const numscriptCredit = `vars {
  asset $asset
  number $amount
  account $user_id
  string $external_ref
  string $lease_id
  string $credit_id
  string $amount_human
}

send [$asset $amount] (
  source = @pool:inbound allowing unbounded overdraft
  destination = @users:$user_id
)

set_tx_meta("event_type", "pool_credit")
set_tx_meta("external_ref", $external_ref)
set_tx_meta("lease_id", $lease_id)
set_tx_meta("credit_id", $credit_id)
set_tx_meta("amount_human", $amount_human)
`

// ledgerAPI is the subset of the Formance v2 ledger client used here.
type ledgerAPI interface {
	CreateLedger(ctx context.Context, request operations.V2CreateLedgerRequest, opts ...operations.Option) (*operations.V2CreateLedgerResponse, error)
	CreateTransaction(ctx context.Context, request operations.V2CreateTransactionRequest, opts ...operations.Option) (*operations.V2CreateTransactionResponse, error)
	GetAccount(ctx context.Context, request operations.V2GetAccountRequest, opts ...operations.Option) (*operations.V2GetAccountResponse, error)
}

// Service posts pool credits to a Formance Stack ledger.
type Service struct {
	client ledgerAPI
	ledger string
}

// NewService connects to the stack, creates the ledger if it doesn't already exist,
// and returns ready to use.
func NewService(ctx context.Context, cfg models.FormanceConfig) (*Service, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "wallet-pool"
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	svc := &Service{client: client.Ledger.V2, ledger: cfg.LedgerName}

	if err := svc.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance service initialized", zap.String("ledger", cfg.LedgerName))
	return svc, nil
}

// ensureLedger creates the ledger if it does not already exist.
func (s *Service) ensureLedger(ctx context.Context) error {
	_, err := s.client.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: s.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "wallet-pool",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", s.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", s.ledger))
	return nil
}

// PostCredit records one credit event. A conflict on the reference means the
// event was already posted and is not an error.
func (s *Service) PostCredit(ctx context.Context, c models.CreditEvent) error {
	symbol := strings.ToUpper(c.Asset)
	postTx := shared.V2PostTransaction{
		Reference: strPtr(c.ExternalRef),
		Timestamp: &c.CreatedAt,
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptCredit,
			Vars: map[string]string{
				"asset":        formanceAsset(symbol),
				"amount":       smallestUnits(c.Amount, symbol),
				"user_id":      c.CreditedTo,
				"external_ref": c.ExternalRef,
				"lease_id":     c.LeaseId,
				"credit_id":    c.Id,
				"amount_human": c.Amount.String(),
			},
		},
	}

	_, err := s.client.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Credit already in ledger", zap.String("external_ref", c.ExternalRef))
			return nil
		}
		return fmt.Errorf("error posting credit to ledger: %w", err)
	}
	return nil
}

// GetUserBalance returns the ledger-side balance of users:{userId} for asset.
func (s *Service) GetUserBalance(ctx context.Context, userId, asset string) (decimal.Decimal, error) {
	symbol := strings.ToUpper(asset)
	resp, err := s.client.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: "users:" + userId,
		Expand:  v3.Pointer("volumes"),
	})
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("error reading ledger account: %w", err)
	}
	if bal := volumeBalance(resp.V2AccountResponse.Data.Volumes, formanceAsset(symbol)); bal != nil {
		return bigIntToDecimal(bal, symbol), nil
	}
	return decimal.Zero, nil
}

// ---------- helpers ----------

// formanceAsset returns the Formance UMN notation, e.g. "USDC/6".
func formanceAsset(symbol string) string {
	return fmt.Sprintf("%s/%d", symbol, precisionFor(symbol))
}

func precisionFor(symbol string) int {
	if p, ok := assetPrecision[symbol]; ok {
		return p
	}
	return 6
}

// smallestUnits renders amount as an integer count of the asset's smallest unit.
func smallestUnits(amount decimal.Decimal, symbol string) string {
	return amount.Shift(int32(precisionFor(symbol))).Truncate(0).BigInt().String()
}

// bigIntToDecimal converts a *big.Int in smallest-unit to a human-readable decimal.
func bigIntToDecimal(raw *big.Int, symbol string) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(precisionFor(symbol)))
}

// volumeBalance extracts the balance for a specific asset from volumes.
func volumeBalance(vols map[string]shared.V2Volume, fAsset string) *big.Int {
	vol, ok := vols[fAsset]
	if !ok {
		return nil
	}
	if vol.Balance != nil {
		return vol.Balance
	}
	if vol.Input == nil {
		return nil
	}
	result := new(big.Int).Set(vol.Input)
	if vol.Output != nil {
		result.Sub(result, vol.Output)
	}
	return result
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

// isNotFoundError checks whether a Formance SDK error is NOT_FOUND.
func isNotFoundError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumNotFound
}

func strPtr(s string) *string { return &s }
