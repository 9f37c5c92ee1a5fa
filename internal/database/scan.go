package database

import (
	"database/sql"
	"fmt"
	"time"

	"wallet-pool-go/internal/models"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// neverUsed seeds last_used_at so fresh resources sort ahead of used ones.
var neverUsed = time.Unix(0, 0).UTC()

// timeValue scans TIMESTAMP columns whether the driver hands back time.Time or text.
type timeValue struct {
	Time  time.Time
	Valid bool
}

func (v *timeValue) Scan(src any) error {
	switch x := src.(type) {
	case nil:
		v.Time, v.Valid = time.Time{}, false
		return nil
	case time.Time:
		v.Time, v.Valid = x.UTC(), true
		return nil
	case string:
		return v.parse(x)
	case []byte:
		return v.parse(string(x))
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (v *timeValue) parse(s string) error {
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			v.Time, v.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

func (v timeValue) ptr() *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// utc normalizes a time before it is written so text comparisons stay ordered.
func utc(t time.Time) time.Time {
	return t.UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*models.PoolResource, error) {
	var r models.PoolResource
	var lastUsed, created, updated timeValue
	var kind, state string
	if err := row.Scan(&r.Id, &kind, &r.ResourceKey, &r.Network, &r.Denomination, &state,
		&lastUsed, &r.UsageCount, &r.CumulativeCredited, &r.CreatedBy, &created, &updated); err != nil {
		return nil, err
	}
	r.Kind = models.ResourceKind(kind)
	r.State = models.ResourceState(state)
	r.LastUsedAt = lastUsed.Time
	r.CreatedAt = created.Time
	r.UpdatedAt = updated.Time
	return &r, nil
}

func scanLease(row rowScanner) (*models.Lease, error) {
	var l models.Lease
	var kind string
	var outcome sql.NullString
	var assigned, expires, ended timeValue
	if err := row.Scan(&l.Id, &kind, &l.ResourceId, &l.ResourceKey, &l.Denomination, &l.HolderId,
		&assigned, &expires, &l.Active, &outcome, &ended); err != nil {
		return nil, err
	}
	l.Kind = models.ResourceKind(kind)
	l.AssignedAt = assigned.Time
	l.ExpiresAt = expires.Time
	if outcome.Valid {
		l.Outcome = models.LeaseOutcome(outcome.String)
	}
	l.EndedAt = ended.ptr()
	return &l, nil
}

func scanCredit(row rowScanner) (*models.CreditEvent, error) {
	var c models.CreditEvent
	var leaseId sql.NullString
	var created, mirrored timeValue
	if err := row.Scan(&c.Id, &leaseId, &c.ExternalRef, &c.Amount, &c.Asset, &c.CreditedTo,
		&created, &mirrored); err != nil {
		return nil, err
	}
	c.LeaseId = leaseId.String
	c.CreatedAt = created.Time
	c.MirroredAt = mirrored.ptr()
	return &c, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var status string
	var reason sql.NullString
	var created, updated timeValue
	if err := row.Scan(&o.Id, &o.UserId, &o.LeaseId, &o.ResourceId, &o.Side, &o.FiatAmount,
		&o.Asset, &status, &reason, &created, &updated); err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	o.Reason = reason.String
	o.CreatedAt = created.Time
	o.UpdatedAt = updated.Time
	return &o, nil
}

func scanConfirmation(row rowScanner) (*models.Confirmation, error) {
	var c models.Confirmation
	var note sql.NullString
	var created timeValue
	if err := row.Scan(&c.Id, &c.LeaseId, &c.ExternalRef, &c.Amount, &c.Asset, &c.Approved,
		&note, &created); err != nil {
		return nil, err
	}
	c.Note = note.String
	c.CreatedAt = created.Time
	return &c, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		zap.L().Warn("Failed to close rows", zap.Error(err))
	}
}
