// Package quota enforces per-user, per-operation daily budgets on product lookups.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"poizon-bot/internal/domain"
)

// Operation names a metered product-lookup call.
type Operation string

const (
	OpExtractSPU     Operation = "extract-spu"
	OpGetProductData Operation = "get-product-data"
)

// DayLayout formats the calendar day a counter belongs to (UTC).
const DayLayout = "2006-01-02"

// Store persists counters. IncrementQuota must be an atomic
// increment-or-insert that refuses to go past limit, returning
// domain.ErrQuotaExceeded in that case.
type Store interface {
	IncrementQuota(ctx context.Context, userID int64, op string, day string, limit int) (int, error)
	QuotaCount(ctx context.Context, userID int64, op string, day string) (int, error)
}

// Tracker gates calls against the configured daily limit.
type Tracker struct {
	store Store
	limit func() int
	now   func() time.Time
}

// NewTracker creates a Tracker. limit is read on every call so admin changes
// apply immediately.
func NewTracker(store Store, limit func() int) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("quota: store must not be nil")
	}
	if limit == nil {
		return nil, errors.New("quota: limit source must not be nil")
	}
	return &Tracker{store: store, limit: limit, now: time.Now}, nil
}

func (t *Tracker) today() string {
	return t.now().UTC().Format(DayLayout)
}

// Check reports domain.ErrQuotaExceeded when the budget for op is already
// spent today. It never consumes a unit.
func (t *Tracker) Check(ctx context.Context, userID int64, op Operation) error {
	n, err := t.store.QuotaCount(ctx, userID, string(op), t.today())
	if err != nil {
		return fmt.Errorf("quota: check %s: %w", op, err)
	}
	if n >= t.limit() {
		return domain.ErrQuotaExceeded
	}
	return nil
}

// Consume spends one unit of op and returns how many remain today.
func (t *Tracker) Consume(ctx context.Context, userID int64, op Operation) (int, error) {
	limit := t.limit()
	if limit <= 0 {
		return 0, domain.ErrQuotaExceeded
	}
	n, err := t.store.IncrementQuota(ctx, userID, string(op), t.today(), limit)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			return 0, domain.ErrQuotaExceeded
		}
		return 0, fmt.Errorf("quota: consume %s: %w", op, err)
	}
	return limit - n, nil
}
