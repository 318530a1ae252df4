package usecase

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"poizon-bot/internal/domain"
	"poizon-bot/internal/settings"
)

const (
	cmdStart         = "/start"
	cmdHelp          = "/help"
	cmdAdminSettings = "/admin_settings"
	cmdSetRate       = "/set_rate"
	cmdStats         = "/stats"
)

func (e *Engine) handleCommand(ctx context.Context, chatID int64, user domain.User, text string) error {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	var (
		err    error
		denied bool
	)
	switch cmd {
	case cmdStart:
		err = e.start(ctx, chatID, user)
	case cmdHelp:
		err = e.msg.SendText(ctx, chatID, textHelp, helpKeyboard())
	case cmdAdminSettings:
		denied, err = e.adminOnly(ctx, chatID, user, e.adminSettings)
	case cmdSetRate:
		denied, err = e.adminOnly(ctx, chatID, user, func(ctx context.Context, chatID int64, user domain.User) error {
			return e.setRate(ctx, chatID, user, fields[1:])
		})
	case cmdStats:
		denied, err = e.adminOnly(ctx, chatID, user, e.stats)
	default:
		err = e.msg.SendText(ctx, chatID, unknownCommandText(cmd), backToMenuKeyboard())
	}
	if err != nil {
		return err
	}

	data := map[string]string{
		"command":      cmd,
		"full_command": truncate(text, auditTextLimit),
	}
	if denied {
		data["denied"] = "true"
	} else {
		slog.Info("command executed", "user_id", user.TelegramID, "command", cmd)
	}
	e.audit(ctx, user.TelegramID, domain.ActionCommandExecuted, data)
	return nil
}

// start greets the user, gated on membership in the public channel. Any
// half-finished calculation is dropped.
func (e *Engine) start(ctx context.Context, chatID int64, user domain.User) error {
	e.sessions.Clear(user.TelegramID)
	channel := e.settings.Current().ChannelUsername
	if !e.isSubscribed(ctx, user, channel) {
		return e.msg.SendText(ctx, chatID, subscriptionText(channel), subscriptionKeyboard(channel))
	}
	return e.msg.SendText(ctx, chatID, textWelcome, welcomeKeyboard())
}

type commandFunc func(ctx context.Context, chatID int64, user domain.User) error

// adminOnly runs next for admins. Anyone else gets a refusal and
// denied=true.
func (e *Engine) adminOnly(ctx context.Context, chatID int64, user domain.User, next commandFunc) (bool, error) {
	if !e.settings.Current().IsAdmin(user.TelegramID) {
		refusal := newError(ErrorUnauthorized, "admin_command", nil)
		slog.Warn("admin command denied", "user_id", user.TelegramID, "code", refusal.Code)
		return true, e.msg.SendText(ctx, chatID, textNotAdmin, nil)
	}
	return false, next(ctx, chatID, user)
}

func (e *Engine) adminSettings(ctx context.Context, chatID int64, _ domain.User) error {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return newError(ErrorInternal, "stats_read_error", err)
	}
	return e.msg.SendText(ctx, chatID, adminPanelText(e.settings.Current(), st), nil)
}

func (e *Engine) stats(ctx context.Context, chatID int64, _ domain.User) error {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return newError(ErrorInternal, "stats_read_error", err)
	}
	return e.msg.SendText(ctx, chatID, statsText(e.settings.Current(), st), nil)
}

// setRate takes exactly one positive number and writes it through as the
// new conversion rate.
func (e *Engine) setRate(ctx context.Context, chatID int64, user domain.User, args []string) error {
	if len(args) != 1 {
		return e.msg.SendText(ctx, chatID, textRateUsage, nil)
	}
	rate, err := strconv.ParseFloat(strings.Replace(args[0], ",", ".", 1), 64)
	if err != nil || math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return e.msg.SendText(ctx, chatID, textRateInvalid, nil)
	}

	oldRate := e.settings.Current().YuanRate
	if err := e.settings.SetYuanRate(ctx, rate, user.TelegramID); err != nil {
		return newError(ErrorInternal, "setting_write_error", err)
	}
	newRate := strconv.FormatFloat(rate, 'f', -1, 64)
	slog.Info("yuan rate updated", "admin_id", user.TelegramID, "old_rate", oldRate, "new_rate", rate)
	e.audit(ctx, user.TelegramID, domain.ActionSettingUpdated, map[string]string{
		"key":   settings.KeyYuanRate,
		"old":   strconv.FormatFloat(oldRate, 'f', -1, 64),
		"value": newRate,
	})
	return e.msg.SendText(ctx, chatID, rateUpdatedText(newRate), nil)
}
