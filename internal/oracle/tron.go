package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wallet-pool-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// solidifiedDepth is the confirmation count reported for transfers that TronGrid
// already returns as confirmed (solidified after 19 blocks).
const solidifiedDepth = 19

const maxTronPages = 5

type TronConfig struct {
	BaseURL         string
	ApiKey          string
	ContractAddress string
	// Symbol is reported as the asset of transfers of ContractAddress.
	Symbol         string
	TokenDecimals  int32
	RequestTimeout time.Duration
	RequestsPerSec float64
	Burst          int
}

// TronOracle reads TRC-20 transfers from the TronGrid v1 API.
type TronOracle struct {
	cfg        TronConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ ChainOracle = (*TronOracle)(nil)

func NewTronOracle(cfg TronConfig) *TronOracle {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &TronOracle{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
	}
}

type trc20Response struct {
	Data    []trc20Transfer `json:"data"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Meta    struct {
		Fingerprint string `json:"fingerprint"`
	} `json:"meta"`
}

type trc20Transfer struct {
	TransactionId  string `json:"transaction_id"`
	BlockTimestamp int64  `json:"block_timestamp"`
	From           string `json:"from"`
	To             string `json:"to"`
	Type           string `json:"type"`
	Value          string `json:"value"`
	Confirmations  *int   `json:"confirmations,omitempty"`
	TokenInfo      struct {
		Symbol   string `json:"symbol"`
		Address  string `json:"address"`
		Decimals int32  `json:"decimals"`
	} `json:"token_info"`
}

func (o *TronOracle) FetchTransfers(ctx context.Context, resourceKey string, since time.Time) ([]models.Transfer, error) {
	var transfers []models.Transfer
	fingerprint := ""

	for page := 0; page < maxTronPages; page++ {
		resp, err := o.fetchPage(ctx, resourceKey, since, fingerprint)
		if err != nil {
			return nil, err
		}

		for _, raw := range resp.Data {
			if raw.To != "" && raw.To != resourceKey {
				continue
			}
			t, err := o.toTransfer(raw)
			if err != nil {
				zap.L().Warn("Skipping malformed TRC-20 transfer",
					zap.String("transaction_id", raw.TransactionId),
					zap.Error(err))
				continue
			}
			transfers = append(transfers, t)
		}

		if resp.Meta.Fingerprint == "" || len(resp.Data) == 0 {
			break
		}
		fingerprint = resp.Meta.Fingerprint
	}

	zap.L().Debug("TronGrid transfers fetched",
		zap.String("address", resourceKey),
		zap.Time("since", since),
		zap.Int("count", len(transfers)))
	return transfers, nil
}

func (o *TronOracle) fetchPage(ctx context.Context, address string, since time.Time, fingerprint string) (*trc20Response, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrTransient, err)
	}

	q := url.Values{}
	q.Set("only_to", "true")
	q.Set("only_confirmed", "true")
	q.Set("limit", "50")
	q.Set("order_by", "block_timestamp,asc")
	q.Set("min_timestamp", strconv.FormatInt(since.UnixMilli(), 10))
	if o.cfg.ContractAddress != "" {
		q.Set("contract_address", o.cfg.ContractAddress)
	}
	if fingerprint != "" {
		q.Set("fingerprint", fingerprint)
	}
	endpoint := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20?%s", o.cfg.BaseURL, url.PathEscape(address), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if o.cfg.ApiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", o.cfg.ApiKey)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: trongrid status %d", ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("trongrid error %d: %s", resp.StatusCode, string(data))
	}

	var out trc20Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if !out.Success && out.Error != "" {
		return nil, fmt.Errorf("trongrid: %s", out.Error)
	}
	return &out, nil
}

func (o *TronOracle) toTransfer(raw trc20Transfer) (models.Transfer, error) {
	value, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return models.Transfer{}, fmt.Errorf("invalid value %q: %w", raw.Value, err)
	}

	decimals := raw.TokenInfo.Decimals
	if decimals == 0 {
		decimals = o.cfg.TokenDecimals
	}

	asset := raw.TokenInfo.Address
	if o.cfg.ContractAddress != "" && raw.TokenInfo.Address == o.cfg.ContractAddress && o.cfg.Symbol != "" {
		asset = o.cfg.Symbol
	}

	confirmations := solidifiedDepth
	if raw.Confirmations != nil {
		confirmations = *raw.Confirmations
	}

	return models.Transfer{
		ExternalRef:   raw.TransactionId,
		Amount:        value.Shift(-decimals),
		Confirmations: confirmations,
		Timestamp:     time.UnixMilli(raw.BlockTimestamp).UTC(),
		Asset:         asset,
	}, nil
}
