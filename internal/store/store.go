package store

import (
	"context"
	"errors"
	"time"

	"wallet-pool-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrResourceExhausted      = errors.New("no pool resource currently available")
	ErrResourceNotFound       = errors.New("pool resource not found")
	ErrResourceLeased         = errors.New("pool resource is leased")
	ErrDuplicateResource      = errors.New("pool resource already exists")
	ErrLeaseNotFound          = errors.New("lease not found")
	ErrUnauthorized           = errors.New("lease is not held by caller")
	ErrLeaseInactive          = errors.New("lease is no longer active")
	ErrLeaseConflict          = errors.New("holder already has an active lease")
	ErrDuplicateCredit        = errors.New("credit already recorded for external reference")
	ErrInvariantViolation     = errors.New("pool invariant violated")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrUserNotFound           = errors.New("user not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrDuplicateConfirmation  = errors.New("confirmation already recorded")
	ErrSettlementPending      = errors.New("lease has a confirmation awaiting settlement")
)

// AddResourceParams contains the parameters for adding a resource to a pool.
type AddResourceParams struct {
	Kind         models.ResourceKind
	ResourceKey  string
	Network      string
	Denomination string
	CreatedBy    string
	Claim        *models.ClaimDetails
}

// CreditParams describes one accepted transfer to apply against a lease.
type CreditParams struct {
	LeaseId     string
	ExternalRef string
	Amount      decimal.Decimal
	Asset       string
}

// BalanceChangeParams describes a single balance adjustment and its audit row.
type BalanceChangeParams struct {
	UserId          string
	Asset           string
	Amount          decimal.Decimal // signed
	TransactionType string
	ExternalRef     string
	LeaseId         string
	Reference       string
}

// Tx is the set of row operations that run inside one database transaction.
// Everything that touches a lease together with its resource goes through a Tx.
type Tx interface {
	// SelectAvailable claims the least recently used AVAILABLE resource of kind,
	// optionally restricted to a denomination. It returns nil when the pool is exhausted.
	SelectAvailable(ctx context.Context, kind models.ResourceKind, denomination string, now time.Time) (*models.PoolResource, error)
	// ReleaseResource returns a LEASED resource to AVAILABLE when no active lease
	// references it. Reports whether a row changed.
	ReleaseResource(ctx context.Context, resourceId string, now time.Time) (bool, error)
	AddCreditedAmount(ctx context.Context, resourceId string, amount decimal.Decimal, now time.Time) error

	InsertLease(ctx context.Context, lease *models.Lease) error
	GetLease(ctx context.Context, leaseId string) (*models.Lease, error)
	ActiveLeaseForHolder(ctx context.Context, kind models.ResourceKind, holderId string) (*models.Lease, error)
	// DeactivateLease flips an active lease to inactive. Reports false when it was already inactive.
	DeactivateLease(ctx context.Context, leaseId string, outcome models.LeaseOutcome, now time.Time) (bool, error)

	CreditExists(ctx context.Context, externalRef string) (bool, error)
	InsertCreditEvent(ctx context.Context, event *models.CreditEvent) error
	ApplyBalanceChange(ctx context.Context, params BalanceChangeParams, now time.Time) (*models.Transaction, error)

	// InsertConfirmation locks the lease row and records a confirmation while the
	// lease is active and unexpired at c.CreatedAt.
	InsertConfirmation(ctx context.Context, c *models.Confirmation) error
	HasConfirmation(ctx context.Context, leaseId string) (bool, error)

	InsertOrder(ctx context.Context, order *models.Order) error
	// SettlePendingOrders moves every PENDING order of a lease to status. Returns the count moved.
	SettlePendingOrders(ctx context.Context, leaseId string, status models.OrderStatus, reason string, now time.Time) (int64, error)
}

// PoolStore is the administrative view of resource inventory.
type PoolStore interface {
	AddResource(ctx context.Context, params AddResourceParams, now time.Time) (*models.PoolResource, error)
	GetResource(ctx context.Context, resourceId string) (*models.PoolResource, error)
	ListResources(ctx context.Context, kind models.ResourceKind, state models.ResourceState) ([]models.PoolResource, error)
	SetResourceDisabled(ctx context.Context, resourceId string, disabled bool, now time.Time) (*models.PoolResource, error)
	// FindOrphanedResources lists LEASED resources with no active lease, untouched since before.
	FindOrphanedResources(ctx context.Context, before time.Time) ([]models.PoolResource, error)
}

// LeaseStore is the read side of leases and their credits.
type LeaseStore interface {
	GetLease(ctx context.Context, leaseId string) (*models.Lease, error)
	ListActiveLeases(ctx context.Context, kind models.ResourceKind) ([]models.Lease, error)
	// ListLeasesForResource returns every lease ever taken on a resource, newest first.
	ListLeasesForResource(ctx context.Context, resourceId string) ([]models.Lease, error)
	GetCreditForLease(ctx context.Context, leaseId string) (*models.CreditEvent, error)
	CreditExists(ctx context.Context, externalRef string) (bool, error)
}

// UserStore reads and adjusts user balances.
type UserStore interface {
	CreateUser(ctx context.Context, userId, name, email string) (*models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	GetUserBalance(ctx context.Context, userId, asset string) (decimal.Decimal, error)
	GetAllUserBalances(ctx context.Context, userId string) ([]models.AccountBalance, error)
	GetTransactionHistory(ctx context.Context, userId, asset string, limit, offset int) ([]models.Transaction, error)
	CreditBalance(ctx context.Context, params BalanceChangeParams) (*models.Transaction, error)
	DebitBalance(ctx context.Context, params BalanceChangeParams) (*models.Transaction, error)
}

// OrderStore looks up and cancels fiat orders by claim lease.
type OrderStore interface {
	GetOrderByLease(ctx context.Context, leaseId string) (*models.Order, error)
	CancelPendingOrders(ctx context.Context, leaseId, reason string, now time.Time) (int64, error)
}

// ConfirmationSource is the operator action feed for claim fulfillment.
type ConfirmationSource interface {
	FetchConfirmations(ctx context.Context, leaseId string, since time.Time) ([]models.Confirmation, error)
}

// MirrorStore is the outbox of credit events awaiting export to an external ledger.
type MirrorStore interface {
	ListUnmirroredCredits(ctx context.Context, limit int) ([]models.CreditEvent, error)
	MarkCreditMirrored(ctx context.Context, creditId string, at time.Time) error
}

// Store is the full persistence contract every backend must satisfy.
type Store interface {
	PoolStore
	LeaseStore
	UserStore
	OrderStore
	ConfirmationSource
	MirrorStore

	// InTx runs fn in one transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	RecordConfirmation(ctx context.Context, c *models.Confirmation) error
	Ping(ctx context.Context) error
	Close()
}
