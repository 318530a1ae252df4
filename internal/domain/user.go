package domain

import "time"

// User is a Telegram account known to the bot.
type User struct {
	TelegramID        int64
	Username          string
	FirstName         string
	LastName          string
	Subscribed        bool
	TotalCalculations int
	TotalOrders       int
	RegisteredAt      time.Time
	LastActivity      time.Time
}

// Handle returns the name operators see in notifications.
func (u User) Handle() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return "Пользователь"
}

// ProfileDiffers reports whether the profile fields of other differ from u.
func (u User) ProfileDiffers(other User) bool {
	return u.Username != other.Username ||
		u.FirstName != other.FirstName ||
		u.LastName != other.LastName
}

// UserFilter narrows user listings. Zero fields match everyone.
type UserFilter struct {
	ActiveSince     time.Time
	RegisteredSince time.Time
}

// AuditEntry is one recorded user action.
type AuditEntry struct {
	UserID int64
	Action string
	Data   map[string]string
	At     time.Time
}

// Audit action names.
const (
	ActionRegistration    = "registration"
	ActionMessageReceived = "message_received"
	ActionCallbackQuery   = "callback_query"
	ActionCommandExecuted = "command_executed"
	ActionOperatorCalled  = "operator_called"
	ActionOrderCreated    = "order_created"
	ActionOrderStatus     = "order_status_changed"
	ActionSettingUpdated  = "setting_updated"
)
