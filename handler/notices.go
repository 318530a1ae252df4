package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"poizon-bot/internal/domain"
	"poizon-bot/internal/orders"
	"poizon-bot/internal/usecase"
)

// maxMessageRunes is Telegram's limit for a single text message.
const maxMessageRunes = 4096

type orderCreatedRequest struct {
	TelegramID      int64    `json:"telegram_id"`
	OrderNumber     string   `json:"order_number"`
	ProductTitle    string   `json:"product_title"`
	Size            string   `json:"size"`
	Amount          *float64 `json:"amount"`
	DeliveryType    string   `json:"delivery_type"`
	ManagerName     string   `json:"manager_name"`
	ManagerUsername string   `json:"manager_username"`
}

type orderCompletedRequest struct {
	TelegramID   int64    `json:"telegram_id"`
	OrderNumber  string   `json:"order_number"`
	ProductTitle string   `json:"product_title"`
	Amount       *float64 `json:"amount"`
	ReviewURL    string   `json:"review_url"`
}

type buttonRequest struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
	URL          string `json:"url"`
}

type messageRequest struct {
	TelegramID int64             `json:"telegram_id"`
	Message    string            `json:"message"`
	Keyboard   [][]buttonRequest `json:"keyboard"`
}

// notifyOrderCreated tells a customer that the CRM confirmed their order.
func (a *Admin) notifyOrderCreated(w http.ResponseWriter, r *http.Request) {
	var req orderCreatedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, amountOK := rubles(req.Amount)
	tier, tierErr := domain.TierStandard, error(nil)
	if raw := strings.TrimSpace(req.DeliveryType); raw != "" {
		tier, tierErr = domain.ParseDeliveryTier(strings.ToLower(raw))
	}
	if req.TelegramID <= 0 || strings.TrimSpace(req.OrderNumber) == "" || strings.TrimSpace(req.ProductTitle) == "" || !amountOK || tierErr != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	}

	text, kb := orders.ConfirmedNotice(orders.Confirmation{
		Number:          strings.TrimSpace(req.OrderNumber),
		Title:           strings.TrimSpace(req.ProductTitle),
		Size:            strings.TrimSpace(req.Size),
		Amount:          amount,
		Tier:            tier,
		ManagerName:     strings.TrimSpace(req.ManagerName),
		ManagerUsername: req.ManagerUsername,
	})
	a.sendNotice(w, r, req.TelegramID, req.OrderNumber, text, kb)
}

// notifyOrderCompleted tells a customer their order arrived and marks a known
// order delivered. Orders placed outside the bot are only notified.
func (a *Admin) notifyOrderCompleted(w http.ResponseWriter, r *http.Request) {
	var req orderCompletedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, amountOK := rubles(req.Amount)
	number := strings.TrimSpace(req.OrderNumber)
	if req.TelegramID <= 0 || number == "" || !amountOK || (req.ReviewURL != "" && !validLink(req.ReviewURL)) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	}

	_, _, err := a.orders.UpdateOrderStatus(r.Context(), number, string(domain.StatusDelivered), "")
	switch {
	case errors.Is(err, domain.ErrNotFound):
		slog.Debug("completed order unknown to the bot", "order_number", number)
	case err != nil:
		slog.Warn("completed order status update failed", "order_number", number, "err", err)
	}

	reviews := req.ReviewURL
	if reviews == "" {
		reviews = a.settings.Current().ReviewsURL
	}
	text, kb := orders.StatusNotice(domain.Order{
		Number: number,
		UserID: req.TelegramID,
		Title:  strings.TrimSpace(req.ProductTitle),
		Status: domain.StatusDelivered,
		Amount: amount,
	}, reviews)
	a.sendNotice(w, r, req.TelegramID, number, text, kb)
}

// sendMessage delivers an operator's free-form message with an optional
// inline keyboard.
func (a *Admin) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kb, kbOK := toKeyboard(req.Keyboard)
	n := utf8.RuneCountInString(req.Message)
	if req.TelegramID <= 0 || strings.TrimSpace(req.Message) == "" || n > maxMessageRunes || !kbOK {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	}
	a.sendNotice(w, r, req.TelegramID, "", req.Message, kb)
}

func (a *Admin) sendNotice(w http.ResponseWriter, r *http.Request, userID int64, number, text string, kb domain.Keyboard) {
	if err := a.notifier.NotifyUser(r.Context(), userID, text, kb); err != nil {
		slog.Error("customer notice failed", "user_id", userID, "order_number", number, "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: string(usecase.ErrorTransport)})
		return
	}
	slog.Info("customer notice sent", "user_id", userID, "order_number", number)
	writeJSON(w, http.StatusOK, ackResponse{OK: true})
}

// rubles converts an optional JSON amount to whole rubles. Negative and
// non-finite amounts are rejected.
func rubles(v *float64) (int64, bool) {
	if v == nil {
		return 0, true
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
		return 0, false
	}
	return int64(math.Round(*v)), true
}

func validLink(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func toKeyboard(rows [][]buttonRequest) (domain.Keyboard, bool) {
	if len(rows) == 0 {
		return nil, true
	}
	kb := make(domain.Keyboard, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			return nil, false
		}
		buttons := make([]domain.Button, 0, len(row))
		for _, b := range row {
			label := strings.TrimSpace(b.Text)
			switch {
			case label == "":
				return nil, false
			case b.CallbackData != "" && b.URL == "":
				buttons = append(buttons, domain.CallbackButton(label, b.CallbackData))
			case b.URL != "" && b.CallbackData == "" && validLink(b.URL):
				buttons = append(buttons, domain.URLButton(label, b.URL))
			default:
				return nil, false
			}
		}
		kb = append(kb, buttons)
	}
	return kb, true
}
