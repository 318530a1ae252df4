// Package orders creates customer orders and moves them through their
// fulfilment statuses.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"poizon-bot/internal/domain"
)

// ErrInvalidRequest is returned for order requests missing required fields.
var ErrInvalidRequest = errors.New("orders: invalid request")

// Store persists orders. CreateOrder assigns the order number and writes the
// order, its lookup pointer, the user's order counter and the audit entry in
// one transaction. UpdateOrderStatus reports changed=false when the stored
// status and tracking number already match.
type Store interface {
	CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error)
	GetOrder(ctx context.Context, number string) (domain.Order, error)
	OrdersByUser(ctx context.Context, userID int64, limit int) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, number string, status domain.OrderStatus, tracking string) (domain.Order, bool, error)
}

// Request describes an order to create from a completed calculation.
type Request struct {
	UserID   int64
	Title    string
	Size     string
	Category domain.Category
	Tier     domain.DeliveryTier
	Amount   int64
}

func (r Request) validate() error {
	switch {
	case r.UserID == 0:
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	case strings.TrimSpace(r.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	case r.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if _, err := domain.ParseDeliveryTier(string(r.Tier)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Manager is the order service used by the bot and the back office.
type Manager struct {
	store Store
}

func NewManager(store Store) (*Manager, error) {
	if store == nil {
		return nil, errors.New("orders: store must not be nil")
	}
	return &Manager{store: store}, nil
}

// CreateOrder stores a new pending order.
func (m *Manager) CreateOrder(ctx context.Context, req Request) (domain.Order, error) {
	if err := req.validate(); err != nil {
		return domain.Order{}, err
	}
	o, err := m.store.CreateOrder(ctx, domain.Order{
		UserID:   req.UserID,
		Title:    strings.TrimSpace(req.Title),
		Size:     req.Size,
		Category: req.Category,
		Status:   domain.StatusPending,
		Amount:   req.Amount,
		Tier:     req.Tier,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: create: %w", err)
	}
	slog.Info("order created", "order_number", o.Number, "user_id", o.UserID, "amount", o.Amount, "tier", o.Tier)
	return o, nil
}

// OrdersByUser returns up to limit orders, newest first. limit <= 0 returns all.
func (m *Manager) OrdersByUser(ctx context.Context, userID int64, limit int) ([]domain.Order, error) {
	list, err := m.store.OrdersByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("orders: list for user %d: %w", userID, err)
	}
	return list, nil
}

// GetOrder returns the order or domain.ErrNotFound.
func (m *Manager) GetOrder(ctx context.Context, number string) (domain.Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.Order{}, fmt.Errorf("%w: order number is required", ErrInvalidRequest)
	}
	o, err := m.store.GetOrder(ctx, number)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: get %s: %w", number, err)
	}
	return o, nil
}

// UpdateOrderStatus validates rawStatus and applies it. Repeating the
// current status and tracking number is a no-op that returns the stored
// order with changed=false.
func (m *Manager) UpdateOrderStatus(ctx context.Context, number, rawStatus, tracking string) (domain.Order, bool, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.Order{}, false, fmt.Errorf("%w: order number is required", ErrInvalidRequest)
	}
	status, err := domain.ParseOrderStatus(strings.ToLower(strings.TrimSpace(rawStatus)))
	if err != nil {
		return domain.Order{}, false, err
	}
	o, changed, err := m.store.UpdateOrderStatus(ctx, number, status, strings.TrimSpace(tracking))
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("orders: update %s: %w", number, err)
	}
	if changed {
		slog.Info("order status changed", "order_number", number, "status", status, "tracking_number", o.TrackingNumber)
	} else {
		slog.Debug("order status unchanged", "order_number", number, "status", status)
	}
	return o, changed, nil
}
