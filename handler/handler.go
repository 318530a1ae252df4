// Package handler is the bot's HTTP surface: the Telegram webhook and the
// back-office admin API.
package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"poizon-bot/internal/dispatch"
	"poizon-bot/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerSecretToken   = "X-Telegram-Bot-Api-Secret-Token"
)

// Engine processes decoded updates.
type Engine interface {
	HandleMessage(ctx context.Context, in usecase.InboundMessage) error
	HandleCallback(ctx context.Context, in usecase.InboundCallback) error
}

// Dispatcher queues work per sender so one user's updates never overlap.
type Dispatcher interface {
	Enqueue(key int64, name string, task dispatch.Task) error
}

type ackResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type Handler struct {
	engine  Engine
	mailbox Dispatcher
	secret  string
}

type Option func(*Handler)

// WithWebhookSecret enables signature checks on incoming updates.
func WithWebhookSecret(secret string) Option {
	return func(h *Handler) {
		h.secret = strings.TrimSpace(secret)
	}
}

func NewHandler(engine Engine, mailbox Dispatcher, opts ...Option) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("handler: engine must not be nil")
	}
	if mailbox == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	h := &Handler{engine: engine, mailbox: mailbox}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle acknowledges one webhook delivery. Accepted updates are queued for
// the engine and processed after the response is built.
func (h *Handler) Handle(_ context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := slog.With("correlation_id", correlationID)

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			log.Warn("webhook body decode failed", "err", err)
			return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: string(usecase.ErrorInvalidInput)}), nil
		}
		body = decoded
	}

	if h.secret != "" && !validSignature(h.secret, body, headerValue(req.Headers, headerSecretToken)) {
		log.Warn("webhook signature rejected")
		return jsonResponse(http.StatusForbidden, correlationID, errorResponse{Error: "forbidden"}), nil
	}

	update, err := decodeUpdate(body)
	if err != nil {
		log.Warn("webhook update rejected", "err", err)
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: string(usecase.ErrorInvalidInput)}), nil
	}

	h.dispatch(log, update)
	return jsonResponse(http.StatusOK, correlationID, ackResponse{OK: true}), nil
}

func (h *Handler) dispatch(log *slog.Logger, update tgbotapi.Update) {
	log = log.With("update_id", update.UpdateID)
	var (
		key  int64
		name string
		task dispatch.Task
	)
	switch {
	case update.Message != nil && update.Message.From != nil:
		in := usecase.InboundMessage{
			ChatID: chatID(update.Message, update.Message.From),
			From:   sender(update.Message.From),
			Text:   update.Message.Text,
		}
		key, name = in.From.ID, "message"
		task = func(ctx context.Context) error { return h.engine.HandleMessage(ctx, in) }
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		cq := update.CallbackQuery
		in := usecase.InboundCallback{
			ID:     cq.ID,
			ChatID: chatID(cq.Message, cq.From),
			From:   sender(cq.From),
			Data:   cq.Data,
		}
		key, name = in.From.ID, "callback_query"
		task = func(ctx context.Context) error { return h.engine.HandleCallback(ctx, in) }
	default:
		log.Info("webhook update ignored")
		return
	}

	if err := h.mailbox.Enqueue(key, name, task); err != nil {
		log.Error("webhook update not queued", "user_id", key, "kind", name, "err", err)
	}
}

// decodeUpdate requires an integer update_id before decoding the rest.
func decodeUpdate(body []byte) (tgbotapi.Update, error) {
	var envelope struct {
		UpdateID json.RawMessage `json:"update_id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return tgbotapi.Update{}, err
	}
	if _, err := strconv.ParseInt(string(envelope.UpdateID), 10, 64); err != nil {
		return tgbotapi.Update{}, errors.New("update_id must be an integer")
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return tgbotapi.Update{}, err
	}
	return update, nil
}

// validSignature compares the hex HMAC-SHA256 of body in constant time.
func validSignature(secret string, body []byte, got string) bool {
	if got == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.ToLower(strings.TrimSpace(got))))
}

func sender(u *tgbotapi.User) usecase.Sender {
	return usecase.Sender{
		ID:        u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// chatID falls back to the user's private chat when the update carries no
// message, as with callbacks on inline-mode results.
func chatID(m *tgbotapi.Message, from *tgbotapi.User) int64 {
	if m != nil && m.Chat != nil {
		return m.Chat.ID
	}
	return from.ID
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func jsonResponse(status int, correlationID string, payload any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"ok":false,"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(body),
	}
}
