package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"poizon-bot/internal/domain"
	"poizon-bot/internal/notify"
	"poizon-bot/internal/orders"
	"poizon-bot/internal/quota"
	"poizon-bot/internal/settings"
)

const (
	auditTextLimit = 100
	myOrdersLimit  = 5
)

type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb domain.Keyboard) error
	SendPhoto(ctx context.Context, chatID int64, url, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	MemberStatus(ctx context.Context, channel string, userID int64) (string, error)
}

type ProductLookup interface {
	ResolveReference(ctx context.Context, link string) (string, error)
	FetchDetails(ctx context.Context, ref string) (domain.ProductSnapshot, error)
}

type Store interface {
	UpsertUser(ctx context.Context, u domain.User) (domain.User, bool, error)
	SetSubscribed(ctx context.Context, userID int64, subscribed bool) error
	SaveCalculation(ctx context.Context, c domain.Calculation) (domain.Calculation, error)
	RecordAction(ctx context.Context, e domain.AuditEntry) error
	Stats(ctx context.Context) (domain.Stats, error)
}

type QuotaGate interface {
	Check(ctx context.Context, userID int64, op quota.Operation) error
	Consume(ctx context.Context, userID int64, op quota.Operation) (int, error)
}

type SettingsSource interface {
	Current() settings.Settings
	SetYuanRate(ctx context.Context, rate float64, updatedBy int64) error
}

type SessionStore interface {
	Get(userID int64) domain.Session
	Set(userID int64, s domain.Session)
	Clear(userID int64)
}

type OrderService interface {
	CreateOrder(ctx context.Context, req orders.Request) (domain.Order, error)
	OrdersByUser(ctx context.Context, userID int64, limit int) ([]domain.Order, error)
}

type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, text string, kb domain.Keyboard) notify.Result
}

// Deps are the collaborators of the Engine. All are required.
type Deps struct {
	Messenger Messenger
	Lookup    ProductLookup
	Store     Store
	Quota     QuotaGate
	Settings  SettingsSource
	Sessions  SessionStore
	Orders    OrderService
	Notifier  AdminNotifier
}

// Sender identifies the Telegram account behind an inbound event.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

type InboundMessage struct {
	ChatID int64
	From   Sender
	Text   string
}

type InboundCallback struct {
	ID     string
	ChatID int64
	From   Sender
	Data   string
}

// Engine drives the guided pricing and ordering conversation.
type Engine struct {
	msg      Messenger
	lookup   ProductLookup
	store    Store
	quota    QuotaGate
	settings SettingsSource
	sessions SessionStore
	orders   OrderService
	notifier AdminNotifier
	now      func() time.Time
}

func NewEngine(d Deps) (*Engine, error) {
	switch {
	case d.Messenger == nil:
		return nil, errors.New("usecase: messenger must not be nil")
	case d.Lookup == nil:
		return nil, errors.New("usecase: product lookup must not be nil")
	case d.Store == nil:
		return nil, errors.New("usecase: store must not be nil")
	case d.Quota == nil:
		return nil, errors.New("usecase: quota gate must not be nil")
	case d.Settings == nil:
		return nil, errors.New("usecase: settings source must not be nil")
	case d.Sessions == nil:
		return nil, errors.New("usecase: session store must not be nil")
	case d.Orders == nil:
		return nil, errors.New("usecase: order service must not be nil")
	case d.Notifier == nil:
		return nil, errors.New("usecase: notifier must not be nil")
	}
	return &Engine{
		msg:      d.Messenger,
		lookup:   d.Lookup,
		store:    d.Store,
		quota:    d.Quota,
		settings: d.Settings,
		sessions: d.Sessions,
		orders:   d.Orders,
		notifier: d.Notifier,
		now:      time.Now,
	}, nil
}

// HandleMessage processes one inbound text message. Failures are reported to
// the user with a recovery message; the returned error is for logging only.
func (e *Engine) HandleMessage(ctx context.Context, in InboundMessage) error {
	user, err := e.touchUser(ctx, in.From)
	if err == nil {
		slog.Info("message received", "user_id", user.TelegramID, "chat_id", in.ChatID, "text", truncate(in.Text, auditTextLimit))
		e.audit(ctx, user.TelegramID, domain.ActionMessageReceived, map[string]string{
			"text":    truncate(in.Text, auditTextLimit),
			"chat_id": formatID(in.ChatID),
		})
		err = e.routeMessage(ctx, in, user)
	}
	if err != nil {
		return e.fail(ctx, in.ChatID, "handle_message", err)
	}
	return nil
}

func (e *Engine) routeMessage(ctx context.Context, in InboundMessage, user domain.User) error {
	text := strings.TrimSpace(in.Text)
	if strings.HasPrefix(text, "/") {
		return e.handleCommand(ctx, in.ChatID, user, text)
	}
	sess := e.sessions.Get(user.TelegramID)
	if sess.Step == domain.StepWaitingURL {
		return e.handleURLInput(ctx, in.ChatID, user, sess, text)
	}
	return e.showMainMenu(ctx, in.ChatID)
}

// HandleCallback processes one inline button press and always answers the
// callback query.
func (e *Engine) HandleCallback(ctx context.Context, in InboundCallback) error {
	user, err := e.touchUser(ctx, in.From)
	if err == nil {
		slog.Info("callback query", "user_id", user.TelegramID, "data", in.Data)
		e.audit(ctx, user.TelegramID, domain.ActionCallbackQuery, map[string]string{"data": in.Data})
		err = e.routeCallback(ctx, in.ChatID, user, in.Data)
	}

	answer := ""
	if err != nil {
		answer = textCallbackFailed
	}
	if aerr := e.msg.AnswerCallback(ctx, in.ID, answer); aerr != nil {
		slog.Warn("answer callback failed", "callback_id", truncate(in.ID, 10), "err", aerr)
	}
	if err != nil {
		return e.fail(ctx, in.ChatID, "handle_callback", err)
	}
	return nil
}

// touchUser registers the sender on first contact and refreshes the profile
// and last activity on every event.
func (e *Engine) touchUser(ctx context.Context, from Sender) (domain.User, error) {
	user, created, err := e.store.UpsertUser(ctx, domain.User{
		TelegramID: from.ID,
		Username:   from.Username,
		FirstName:  from.FirstName,
		LastName:   from.LastName,
	})
	if err != nil {
		return domain.User{}, newError(ErrorInternal, "user_upsert_error", err)
	}
	if created {
		slog.Info("user registered", "user_id", user.TelegramID, "username", user.Username)
		e.audit(ctx, user.TelegramID, domain.ActionRegistration, map[string]string{"username": user.Username})
	}
	return user, nil
}

// audit records a user action. Audit failures never fail the event.
func (e *Engine) audit(ctx context.Context, userID int64, action string, data map[string]string) {
	err := e.store.RecordAction(ctx, domain.AuditEntry{UserID: userID, Action: action, Data: data, At: e.now()})
	if err != nil {
		slog.Warn("audit write failed", "user_id", userID, "action", action, "err", err)
	}
}

// fail sends the generic recovery message and returns the classified error.
func (e *Engine) fail(ctx context.Context, chatID int64, reason string, err error) error {
	uerr := classify(reason, err)
	if sendErr := e.msg.SendText(ctx, chatID, textRecovery, recoveryKeyboard()); sendErr != nil {
		slog.Warn("recovery message failed", "chat_id", chatID, "err", sendErr)
	}
	return uerr
}

// rejectMissingContext refuses an action whose earlier steps are absent.
// The session is left untouched.
func (e *Engine) rejectMissingContext(ctx context.Context, chatID, userID int64, action string) error {
	rej := newError(ErrorMissingContext, action, nil)
	slog.Info("action rejected", "user_id", userID, "code", rej.Code, "reason", rej.Reason)
	if err := e.msg.SendText(ctx, chatID, textMissingContext, nil); err != nil {
		return err
	}
	return e.showMainMenu(ctx, chatID)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
