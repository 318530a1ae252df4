package domain

import (
	"fmt"
	"time"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus validates a raw status value.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch s := OrderStatus(raw); s {
	case StatusPending, StatusConfirmed, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

var statusLabels = map[OrderStatus]string{
	StatusPending:   "В обработке",
	StatusConfirmed: "Подтвержден",
	StatusPaid:      "Оплачен",
	StatusShipped:   "Отправлен",
	StatusDelivered: "Доставлен",
	StatusCancelled: "Отменен",
}

var statusEmoji = map[OrderStatus]string{
	StatusPending:   "🟡",
	StatusConfirmed: "🔵",
	StatusPaid:      "🟢",
	StatusShipped:   "📦",
	StatusDelivered: "✅",
	StatusCancelled: "❌",
}

// Label is the customer-facing status name.
func (s OrderStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return "Неизвестно"
}

func (s OrderStatus) Emoji() string {
	if e, ok := statusEmoji[s]; ok {
		return e
	}
	return "⚪"
}

// DeliveryTier selects between the two quoted totals.
type DeliveryTier string

const (
	TierStandard DeliveryTier = "standard"
	TierExpress  DeliveryTier = "express"
)

// ParseDeliveryTier validates a raw tier name.
func ParseDeliveryTier(raw string) (DeliveryTier, error) {
	switch t := DeliveryTier(raw); t {
	case TierStandard, TierExpress:
		return t, nil
	}
	return "", fmt.Errorf("unknown delivery tier %q", raw)
}

// Label is the tier name shown to operators.
func (t DeliveryTier) Label() string {
	if t == TierExpress {
		return "экспресс"
	}
	return "стандарт"
}

// Order is a customer's purchase intent handed to operators.
type Order struct {
	Number         string
	UserID         int64
	Title          string
	Size           string
	Category       Category
	Status         OrderStatus
	Amount         int64
	Tier           DeliveryTier
	TrackingNumber string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Calculation is a durable snapshot of one completed price computation.
type Calculation struct {
	ID            string
	UserID        int64
	ProductRef    string
	URL           string
	Title         string
	Category      Category
	Size          string
	SourcePrice   float64
	StandardTotal int64
	ExpressTotal  int64
	Product       ProductSnapshot
	CreatedAt     time.Time
}

// Total returns the amount for the chosen delivery tier.
func (c Calculation) Total(tier DeliveryTier) int64 {
	if tier == TierExpress {
		return c.ExpressTotal
	}
	return c.StandardTotal
}
