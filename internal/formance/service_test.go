package formance

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wallet-pool-go/internal/database"
	"wallet-pool-go/internal/models"
	"wallet-pool-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"USDT", "USDT/6"},
		{"BTC", "BTC/8"},
		{"ETH", "ETH/18"},
		{"UNKNOWN", "UNKNOWN/6"}, // default precision
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.symbol); got != tt.want {
			t.Errorf("formanceAsset(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}

func TestSmallestUnits(t *testing.T) {
	if got := smallestUnits(decimal.RequireFromString("100.5"), "USDT"); got != "100500000" {
		t.Errorf("smallestUnits = %s, want 100500000", got)
	}
	if got := smallestUnits(decimal.RequireFromString("0.123456789"), "USDT"); got != "123456" {
		t.Errorf("smallestUnits truncates below precision, got %s", got)
	}
}

func TestBigIntToDecimal(t *testing.T) {
	// 1_000_000 smallest units of USDT (precision 6) = 1.0
	d := decimal.NewFromInt(1_000_000)
	result := bigIntToDecimal(d.BigInt(), "USDT")
	if !result.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected 1.0, got %s", result.String())
	}

	// nil should return zero
	result = bigIntToDecimal(nil, "USDT")
	if !result.IsZero() {
		t.Errorf("expected 0, got %s", result.String())
	}
}

func TestIsConflictError(t *testing.T) {
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
	if !isConflictError(conflict()) {
		t.Error("CONFLICT response should be a conflict error")
	}
}

// ---------- PostCredit / Mirror against a fake ledger ----------

type fakeLedger struct {
	posted    []operations.V2CreateTransactionRequest
	refs      map[string]bool
	failAfter int
}

func conflict() error {
	return &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumConflict, ErrorMessage: "reference already used"}
}

func (f *fakeLedger) CreateLedger(ctx context.Context, request operations.V2CreateLedgerRequest, opts ...operations.Option) (*operations.V2CreateLedgerResponse, error) {
	return &operations.V2CreateLedgerResponse{}, nil
}

func (f *fakeLedger) CreateTransaction(ctx context.Context, request operations.V2CreateTransactionRequest, opts ...operations.Option) (*operations.V2CreateTransactionResponse, error) {
	if f.failAfter > 0 && len(f.posted) >= f.failAfter {
		return nil, errors.New("stack unavailable")
	}
	ref := *request.V2PostTransaction.Reference
	if f.refs[ref] {
		return nil, conflict()
	}
	f.refs[ref] = true
	f.posted = append(f.posted, request)
	return &operations.V2CreateTransactionResponse{}, nil
}

func (f *fakeLedger) GetAccount(ctx context.Context, request operations.V2GetAccountRequest, opts ...operations.Option) (*operations.V2GetAccountResponse, error) {
	return nil, &sdkerrors.V2ErrorResponse{ErrorCode: shared.V2ErrorsEnumNotFound}
}

func TestPostCredit(t *testing.T) {
	fake := &fakeLedger{refs: map[string]bool{}}
	s := &Service{client: fake, ledger: "test"}
	credit := models.CreditEvent{
		Id:          "c1",
		LeaseId:     "l1",
		ExternalRef: "tx1",
		Amount:      decimal.NewFromInt(100),
		Asset:       "usdt",
		CreditedTo:  "user-1",
		CreatedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := s.PostCredit(context.Background(), credit); err != nil {
		t.Fatalf("PostCredit: %v", err)
	}
	if err := s.PostCredit(context.Background(), credit); err != nil {
		t.Fatalf("re-posting the same reference should be absorbed, got %v", err)
	}
	if len(fake.posted) != 1 {
		t.Fatalf("expected 1 ledger transaction, got %d", len(fake.posted))
	}

	vars := fake.posted[0].V2PostTransaction.Script.Vars
	if vars["asset"] != "USDT/6" || vars["amount"] != "100000000" || vars["user_id"] != "user-1" {
		t.Errorf("unexpected script vars: %v", vars)
	}

	bal, err := s.GetUserBalance(context.Background(), "nobody", "USDT")
	if err != nil || !bal.IsZero() {
		t.Errorf("missing account should read as zero, got %s, %v", bal, err)
	}
}

func setupTestDb(t *testing.T) (*database.Service, func()) {
	t.Helper()
	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "mirror.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	return db, db.Close
}

func TestMirror(t *testing.T) {
	db, cleanup := setupTestDb(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ref := range []string{"tx1", "tx2", "tx3"} {
		err := db.InTx(ctx, func(tx store.Tx) error {
			return tx.InsertCreditEvent(ctx, &models.CreditEvent{
				Id:          uuid.New().String(),
				ExternalRef: ref,
				Amount:      decimal.NewFromInt(5),
				Asset:       "USDT",
				CreditedTo:  "user-1",
				CreatedAt:   base.Add(time.Duration(i) * time.Second),
			})
		})
		if err != nil {
			t.Fatalf("insert credit %s: %v", ref, err)
		}
	}

	fake := &fakeLedger{refs: map[string]bool{"tx1": true}, failAfter: 1}
	m := NewMirror(&Service{client: fake, ledger: "test"}, db, 10, nil)

	n, err := m.Sweep(ctx)
	if err == nil {
		t.Fatal("expected the ledger outage to surface")
	}
	// tx1 conflicts (already posted), tx2 posts, tx3 hits the outage
	if n != 2 {
		t.Fatalf("expected 2 stamped before the outage, got %d", n)
	}

	fake.failAfter = 0
	n, err = m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the remaining credit to be mirrored, got %d", n)
	}

	pending, err := db.ListUnmirroredCredits(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnmirroredCredits: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected empty outbox, got %d", len(pending))
	}
}
