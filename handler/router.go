package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const maxWebhookBody = 1 << 20

// HealthChecker reports whether the product lookup service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// NewRouter serves the webhook, health check and admin API over plain HTTP.
// health may be nil.
func NewRouter(h *Handler, admin *Admin, health HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Post("/webhook", h.ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health.Health(r.Context()); err != nil {
				slog.Warn("health check failed", "err", err)
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "lookup_unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, ackResponse{OK: true})
	})
	r.Route("/admin", admin.Routes)
	return r
}

// ServeHTTP adapts a plain HTTP request to Handle.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}
	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}
	resp, _ := h.Handle(r.Context(), events.APIGatewayProxyRequest{
		HTTPMethod: r.Method,
		Path:       r.URL.Path,
		Headers:    headers,
		Body:       string(body),
	})
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}
