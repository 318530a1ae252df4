// Package telegram adapts the Bot API client to the bot's messaging port.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"poizon-bot/internal/domain"
)

// maxMessageLen is the Bot API limit for one text message, in characters.
const maxMessageLen = 4096

// APIError is a failed Bot API call.
type APIError struct {
	Method string
	Code   int
	Err    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s: %v", e.Method, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the Bot API error code, or 0 when the call failed
// before a response arrived.
func (e *APIError) HTTPStatusCode() int {
	return e.Code
}

func apiError(method string, err error) error {
	e := &APIError{Method: method, Err: err}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		e.Code = tgErr.Code
	}
	return e
}

// botAPI is the subset of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Client sends messages through the Bot API.
type Client struct {
	api botAPI
}

// New wraps api, typically a *tgbotapi.BotAPI.
func New(api botAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("telegram: api must not be nil")
	}
	return &Client{api: api}, nil
}

// SendText sends text as plain text. Texts over the Bot API limit are split
// on line boundaries; the keyboard is attached to the last part.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, kb domain.Keyboard) error {
	parts := splitText(text, maxMessageLen)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("telegram: send message: %w", err)
		}
		msg := tgbotapi.NewMessage(chatID, part)
		msg.DisableWebPagePreview = true
		if i == len(parts)-1 && len(kb) > 0 {
			msg.ReplyMarkup = inlineKeyboard(kb)
		}
		if _, err := c.api.Send(msg); err != nil {
			return apiError(fmt.Sprintf("sendMessage to %d", chatID), err)
		}
	}
	return nil
}

// SendPhoto sends the image at url with a caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, url, caption string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram: send photo: %w", err)
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(url))
	photo.Caption = caption
	if _, err := c.api.Send(photo); err != nil {
		return apiError(fmt.Sprintf("sendPhoto to %d", chatID), err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query, optionally showing text.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return apiError("answerCallbackQuery "+callbackID, err)
	}
	return nil
}

// MemberStatus returns the user's membership status in the public channel
// (member, administrator, creator, left, kicked, restricted).
func (c *Client) MemberStatus(ctx context.Context, channel string, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("telegram: get chat member: %w", err)
	}
	channel = strings.TrimPrefix(strings.TrimSpace(channel), "@")
	if channel == "" {
		return "", errors.New("telegram: channel must not be empty")
	}
	m, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: "@" + channel,
			UserID:             userID,
		},
	})
	if err != nil {
		return "", apiError(fmt.Sprintf("getChatMember %d in @%s", userID, channel), err)
	}
	return m.Status, nil
}

func inlineKeyboard(kb domain.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, r := range kb {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			if b.URL != "" {
				row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
				continue
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		if len(row) > 0 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// splitText cuts s into parts of at most limit characters, preferring line
// breaks as cut points.
func splitText(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var parts []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, line := range strings.SplitAfter(s, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			r := []rune(line)
			parts = append(parts, string(r[:limit]))
			line = string(r[limit:])
			n -= limit
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return parts
}
