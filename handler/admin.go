package handler

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"poizon-bot/internal/domain"
	"poizon-bot/internal/notify"
	"poizon-bot/internal/orders"
	"poizon-bot/internal/settings"
	"poizon-bot/internal/usecase"
)

const (
	maxAdminBody     = 64 << 10
	defaultUserLimit = 20
	maxUserLimit     = 100
)

type OrderService interface {
	GetOrder(ctx context.Context, number string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, number, rawStatus, tracking string) (domain.Order, bool, error)
}

type Notifier interface {
	NotifyUser(ctx context.Context, userID int64, text string, kb domain.Keyboard) error
	Broadcast(ctx context.Context, text string, target notify.Target) (notify.Result, error)
	ExportUsers(ctx context.Context, w io.Writer, format notify.Format) error
}

type StatsSource interface {
	Stats(ctx context.Context) (domain.Stats, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, userID int64) (domain.User, error)
	CalculationsByUser(ctx context.Context, userID int64, limit int) ([]domain.Calculation, error)
	AuditTrail(ctx context.Context, userID int64, limit int) ([]domain.AuditEntry, error)
}

type SettingsSource interface {
	Current() settings.Settings
}

// AdminDeps are the collaborators of the back-office API. All are required.
type AdminDeps struct {
	Orders   OrderService
	Notifier Notifier
	Stats    StatsSource
	Users    UserDirectory
	Settings SettingsSource
	Token    string
}

// Admin serves the back-office endpoints used by operators.
type Admin struct {
	orders   OrderService
	notifier Notifier
	stats    StatsSource
	users    UserDirectory
	settings SettingsSource
	token    string
}

func NewAdmin(d AdminDeps) (*Admin, error) {
	switch {
	case d.Orders == nil:
		return nil, errors.New("handler: order service must not be nil")
	case d.Notifier == nil:
		return nil, errors.New("handler: notifier must not be nil")
	case d.Stats == nil:
		return nil, errors.New("handler: stats source must not be nil")
	case d.Users == nil:
		return nil, errors.New("handler: user directory must not be nil")
	case d.Settings == nil:
		return nil, errors.New("handler: settings source must not be nil")
	case strings.TrimSpace(d.Token) == "":
		return nil, errors.New("handler: admin token must not be empty")
	}
	return &Admin{
		orders:   d.Orders,
		notifier: d.Notifier,
		stats:    d.Stats,
		users:    d.Users,
		settings: d.Settings,
		token:    strings.TrimSpace(d.Token),
	}, nil
}

func (a *Admin) Routes(r chi.Router) {
	r.Use(a.requireToken)
	r.Get("/orders/{number}", a.getOrder)
	r.Post("/orders/{number}/status", a.updateOrderStatus)
	r.Post("/notify/order-created", a.notifyOrderCreated)
	r.Post("/notify/order-completed", a.notifyOrderCompleted)
	r.Post("/messages", a.sendMessage)
	r.Post("/broadcast", a.broadcast)
	r.Get("/users/export", a.exportUsers)
	r.Get("/users/{id}", a.getUser)
	r.Get("/stats", a.getStats)
}

func (a *Admin) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		tok, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(tok)), []byte(a.token)) != 1 {
			slog.Warn("admin request rejected", "path", r.URL.Path)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: string(usecase.ErrorUnauthorized)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
}

type orderView struct {
	Number         string    `json:"number"`
	UserID         int64     `json:"userId"`
	Title          string    `json:"title"`
	Size           string    `json:"size"`
	Category       string    `json:"category"`
	Status         string    `json:"status"`
	Amount         int64     `json:"amount"`
	DeliveryTier   string    `json:"deliveryTier"`
	TrackingNumber string    `json:"trackingNumber,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type statusResponse struct {
	OK       bool      `json:"ok"`
	Order    orderView `json:"order"`
	Changed  bool      `json:"changed"`
	Notified bool      `json:"notified"`
}

func toOrderView(o domain.Order) orderView {
	return orderView{
		Number:         o.Number,
		UserID:         o.UserID,
		Title:          o.Title,
		Size:           o.Size,
		Category:       string(o.Category),
		Status:         string(o.Status),
		Amount:         o.Amount,
		DeliveryTier:   string(o.Tier),
		TrackingNumber: o.TrackingNumber,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (a *Admin) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.orders.GetOrder(r.Context(), chi.URLParam(r, "number"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound)})
		return
	case errors.Is(err, orders.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	case err != nil:
		slog.Error("order read failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

// updateOrderStatus applies a status change and tells the customer about it.
// A repeated identical update sends nothing.
func (a *Admin) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	number := chi.URLParam(r, "number")
	o, changed, err := a.orders.UpdateOrderStatus(r.Context(), number, req.Status, req.TrackingNumber)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound)})
		return
	case errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, orders.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	case err != nil:
		slog.Error("order status update failed", "order_number", number, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
		return
	}

	resp := statusResponse{OK: true, Order: toOrderView(o), Changed: changed}
	if changed {
		text, kb := orders.StatusNotice(o, a.settings.Current().ReviewsURL)
		if err := a.notifier.NotifyUser(r.Context(), o.UserID, text, kb); err != nil {
			slog.Warn("order status notice failed", "order_number", o.Number, "user_id", o.UserID, "err", err)
		} else {
			resp.Notified = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type broadcastRequest struct {
	Text   string `json:"text"`
	Target string `json:"target"`
}

type broadcastResponse struct {
	OK bool `json:"ok"`
	notify.Result
}

func (a *Admin) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target, err := notify.ParseTarget(req.Target)
	if err != nil || strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	}
	res, err := a.notifier.Broadcast(r.Context(), req.Text, target)
	if err != nil {
		slog.Error("broadcast failed", "target", target, "sent", res.Sent, "failed", res.Failed, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
		return
	}
	writeJSON(w, http.StatusOK, broadcastResponse{OK: true, Result: res})
}

func (a *Admin) exportUsers(w http.ResponseWriter, r *http.Request) {
	format, err := notify.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	}
	var buf bytes.Buffer
	if err := a.notifier.ExportUsers(r.Context(), &buf, format); err != nil {
		slog.Error("user export failed", "format", format, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="users.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *Admin) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.stats.Stats(r.Context())
	if err != nil {
		slog.Error("stats read failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type userView struct {
	TelegramID        int64     `json:"telegramId"`
	Username          string    `json:"username,omitempty"`
	FirstName         string    `json:"firstName,omitempty"`
	LastName          string    `json:"lastName,omitempty"`
	Subscribed        bool      `json:"isSubscribed"`
	TotalCalculations int       `json:"totalCalculations"`
	TotalOrders       int       `json:"totalOrders"`
	RegisteredAt      time.Time `json:"registeredAt"`
	LastActivity      time.Time `json:"lastActivity"`
}

type calculationView struct {
	ID         string    `json:"id"`
	ProductRef string    `json:"productRef"`
	Title      string    `json:"title"`
	Size       string    `json:"size"`
	Category   string    `json:"category"`
	Standard   int64     `json:"standardTotal"`
	Express    int64     `json:"expressTotal"`
	CreatedAt  time.Time `json:"createdAt"`
}

type actionView struct {
	Action string            `json:"action"`
	Data   map[string]string `json:"data,omitempty"`
	At     time.Time         `json:"at"`
}

type userDetailResponse struct {
	User         userView          `json:"user"`
	Calculations []calculationView `json:"calculations"`
	Actions      []actionView      `json:"actions"`
}

// getUser returns a customer's profile with their latest calculations and
// audit trail. ?limit= caps both lists.
func (a *Admin) getUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	}
	limit := defaultUserLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
			return
		}
		limit = min(n, maxUserLimit)
	}

	ctx := r.Context()
	u, err := a.users.GetUser(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound)})
		return
	}
	if err != nil {
		slog.Error("user read failed", "user_id", userID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
		return
	}
	calcs, err := a.users.CalculationsByUser(ctx, userID, limit)
	if err != nil {
		slog.Error("calculations read failed", "user_id", userID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
		return
	}
	trail, err := a.users.AuditTrail(ctx, userID, limit)
	if err != nil {
		slog.Error("audit trail read failed", "user_id", userID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
		return
	}

	resp := userDetailResponse{
		User: userView{
			TelegramID:        u.TelegramID,
			Username:          u.Username,
			FirstName:         u.FirstName,
			LastName:          u.LastName,
			Subscribed:        u.Subscribed,
			TotalCalculations: u.TotalCalculations,
			TotalOrders:       u.TotalOrders,
			RegisteredAt:      u.RegisteredAt,
			LastActivity:      u.LastActivity,
		},
		Calculations: make([]calculationView, 0, len(calcs)),
		Actions:      make([]actionView, 0, len(trail)),
	}
	for _, c := range calcs {
		resp.Calculations = append(resp.Calculations, calculationView{
			ID:         c.ID,
			ProductRef: c.ProductRef,
			Title:      c.Title,
			Size:       c.Size,
			Category:   string(c.Category),
			Standard:   c.StandardTotal,
			Express:    c.ExpressTotal,
			CreatedAt:  c.CreatedAt,
		})
	}
	for _, e := range trail {
		resp.Actions = append(resp.Actions, actionView{Action: e.Action, Data: e.Data, At: e.At})
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxAdminBody))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("response write failed", "err", err)
	}
}
