// Package notify delivers bot messages to operators and customers outside a
// conversation: new-order alerts, status notices and broadcasts.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"poizon-bot/internal/domain"
)

const (
	defaultDelay = 100 * time.Millisecond
	activeWindow = 7 * 24 * time.Hour
	recentWindow = 30 * 24 * time.Hour
)

// Messenger is the outbound half of the messaging transport.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb domain.Keyboard) error
}

// UserLister reads user profiles for broadcasts and exports.
type UserLister interface {
	ListUsers(ctx context.Context, f domain.UserFilter) ([]domain.User, error)
}

// Target selects broadcast recipients.
type Target string

const (
	TargetAll    Target = "all"
	TargetActive Target = "active"
	TargetRecent Target = "recent"
)

// ParseTarget validates a raw target; empty means active.
func ParseTarget(raw string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(raw))); t {
	case "":
		return TargetActive, nil
	case TargetAll, TargetActive, TargetRecent:
		return t, nil
	}
	return "", fmt.Errorf("notify: unknown target %q", raw)
}

// Result counts delivery outcomes.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Notifier fans messages out to several recipients.
type Notifier struct {
	msg    Messenger
	users  UserLister
	admins func() []int64
	delay  time.Duration
	now    func() time.Time
}

type Option func(*Notifier)

// WithDelay sets the pause between broadcast sends.
func WithDelay(d time.Duration) Option {
	return func(n *Notifier) {
		if d >= 0 {
			n.delay = d
		}
	}
}

// New creates a Notifier. admins is consulted on every call so settings
// changes apply without a restart.
func New(msg Messenger, users UserLister, admins func() []int64, opts ...Option) (*Notifier, error) {
	if msg == nil {
		return nil, errors.New("notify: messenger must not be nil")
	}
	if users == nil {
		return nil, errors.New("notify: user lister must not be nil")
	}
	if admins == nil {
		return nil, errors.New("notify: admin source must not be nil")
	}
	n := &Notifier{msg: msg, users: users, admins: admins, delay: defaultDelay, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifyAdmins sends text to every configured admin. A failed recipient is
// logged and does not stop delivery to the others.
func (n *Notifier) NotifyAdmins(ctx context.Context, text string, kb domain.Keyboard) Result {
	ids := n.admins()
	if len(ids) == 0 {
		slog.Warn("no admin recipients configured")
		return Result{}
	}
	var res Result
	for _, id := range ids {
		if err := n.msg.SendText(ctx, id, text, kb); err != nil {
			res.Failed++
			slog.Error("admin notification failed", "admin_id", id, "err", err)
			continue
		}
		res.Sent++
	}
	return res
}

// NotifyUser sends one message to a customer.
func (n *Notifier) NotifyUser(ctx context.Context, userID int64, text string, kb domain.Keyboard) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("notify: text is required")
	}
	if err := n.msg.SendText(ctx, userID, text, kb); err != nil {
		return fmt.Errorf("notify: user %d: %w", userID, err)
	}
	return nil
}

// Broadcast sends text to the users selected by target, one at a time with
// the configured delay between sends. Cancelling ctx stops the run and
// returns the counts so far.
func (n *Notifier) Broadcast(ctx context.Context, text string, target Target) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, errors.New("notify: text is required")
	}
	var f domain.UserFilter
	switch target {
	case TargetAll:
	case TargetActive:
		f.ActiveSince = n.now().Add(-activeWindow)
	case TargetRecent:
		f.RegisteredSince = n.now().Add(-recentWindow)
	default:
		return Result{}, fmt.Errorf("notify: unknown target %q", target)
	}
	users, err := n.users.ListUsers(ctx, f)
	if err != nil {
		return Result{}, fmt.Errorf("notify: broadcast recipients: %w", err)
	}

	var res Result
	for i, u := range users {
		if i > 0 && n.delay > 0 {
			if err := sleep(ctx, n.delay); err != nil {
				return res, fmt.Errorf("notify: broadcast: %w", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("notify: broadcast: %w", err)
		}
		if err := n.msg.SendText(ctx, u.TelegramID, text, nil); err != nil {
			res.Failed++
			slog.Warn("broadcast send failed", "user_id", u.TelegramID, "err", err)
			continue
		}
		res.Sent++
	}
	slog.Info("broadcast completed", "target", target, "total_users", len(users), "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
