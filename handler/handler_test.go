package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"poizon-bot/internal/dispatch"
	"poizon-bot/internal/usecase"
)

type stubEngine struct {
	messages  []usecase.InboundMessage
	callbacks []usecase.InboundCallback
}

func (s *stubEngine) HandleMessage(_ context.Context, in usecase.InboundMessage) error {
	s.messages = append(s.messages, in)
	return nil
}

func (s *stubEngine) HandleCallback(_ context.Context, in usecase.InboundCallback) error {
	s.callbacks = append(s.callbacks, in)
	return errors.New("engine failure stays off the response")
}

type queued struct {
	key  int64
	name string
	task dispatch.Task
}

type stubDispatcher struct {
	queued []queued
	err    error
}

func (s *stubDispatcher) Enqueue(key int64, name string, task dispatch.Task) error {
	if s.err != nil {
		return s.err
	}
	s.queued = append(s.queued, queued{key: key, name: name, task: task})
	return nil
}

func (s *stubDispatcher) runAll(t *testing.T) {
	t.Helper()
	for _, q := range s.queued {
		_ = q.task(context.Background())
	}
}

const (
	messageUpdate  = `{"update_id":1001,"message":{"message_id":5,"from":{"id":42,"is_bot":false,"first_name":"Neo","last_name":"Anderson","username":"neo"},"chat":{"id":42,"type":"private"},"date":1760520600,"text":"/start"}}`
	callbackUpdate = `{"update_id":1002,"callback_query":{"id":"cb-1","from":{"id":42,"is_bot":false,"first_name":"Neo","username":"neo"},"message":{"message_id":6,"chat":{"id":4242,"type":"private"},"date":1760520600},"chat_instance":"x","data":"category_shoes"}}`
)

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/webhook",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func newTestHandler(t *testing.T, opts ...Option) (*Handler, *stubEngine, *stubDispatcher) {
	t.Helper()
	eng := &stubEngine{}
	disp := &stubDispatcher{}
	h, err := NewHandler(eng, disp, opts...)
	require.NoError(t, err)
	return h, eng, disp
}

func TestNewHandler_ValidatesDependencies(t *testing.T) {
	_, err := NewHandler(nil, &stubDispatcher{})
	require.Error(t, err)
	_, err = NewHandler(&stubEngine{}, nil)
	require.Error(t, err)
}

func TestHandle_QueuesMessage(t *testing.T) {
	h, eng, disp := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(messageUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"ok":true}`, resp.Body)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	require.Len(t, disp.queued, 1)
	require.Equal(t, int64(42), disp.queued[0].key)
	require.Equal(t, "message", disp.queued[0].name)
	require.Empty(t, eng.messages)

	disp.runAll(t)
	require.Equal(t, []usecase.InboundMessage{{
		ChatID: 42,
		From:   usecase.Sender{ID: 42, Username: "neo", FirstName: "Neo", LastName: "Anderson"},
		Text:   "/start",
	}}, eng.messages)
}

func TestHandle_QueuesCallback(t *testing.T) {
	h, eng, disp := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(callbackUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, disp.queued, 1)
	require.Equal(t, "callback_query", disp.queued[0].name)

	disp.runAll(t)
	require.Equal(t, []usecase.InboundCallback{{
		ID:     "cb-1",
		ChatID: 4242,
		From:   usecase.Sender{ID: 42, Username: "neo", FirstName: "Neo"},
		Data:   "category_shoes",
	}}, eng.callbacks)
}

func TestHandle_CallbackWithoutMessageUsesSenderChat(t *testing.T) {
	h, eng, disp := newTestHandler(t)

	_, err := h.Handle(context.Background(), makeEvent(`{"update_id":7,"callback_query":{"id":"cb-2","from":{"id":77,"is_bot":false,"first_name":"A"},"data":"main_menu"}}`))
	require.NoError(t, err)
	disp.runAll(t)
	require.Len(t, eng.callbacks, 1)
	require.Equal(t, int64(77), eng.callbacks[0].ChatID)
}

func TestHandle_AcknowledgesOtherUpdates(t *testing.T) {
	h, _, disp := newTestHandler(t)

	resp, err := h.Handle(context.Background(), makeEvent(`{"update_id":9,"edited_message":{"message_id":1,"chat":{"id":1,"type":"private"},"date":1,"text":"x"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, disp.queued)
}

func TestHandle_RejectsMalformedUpdates(t *testing.T) {
	cases := map[string]string{
		"not json":          `not-json`,
		"missing update_id": `{"message":{"text":"hi"}}`,
		"string update_id":  `{"update_id":"12"}`,
		"float update_id":   `{"update_id":1.5}`,
		"null update_id":    `{"update_id":null}`,
		"bad message shape": `{"update_id":3,"message":"hi"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			h, _, disp := newTestHandler(t)
			resp, err := h.Handle(context.Background(), makeEvent(body))
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
			require.Empty(t, disp.queued)
		})
	}
}

func TestHandle_Signature(t *testing.T) {
	const secret = "hook-secret"

	t.Run("missing", func(t *testing.T) {
		h, _, disp := newTestHandler(t, WithWebhookSecret(secret))
		resp, err := h.Handle(context.Background(), makeEvent(messageUpdate))
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.JSONEq(t, `{"ok":false,"error":"forbidden"}`, resp.Body)
		require.Empty(t, disp.queued)
	})

	t.Run("mismatch", func(t *testing.T) {
		h, _, disp := newTestHandler(t, WithWebhookSecret(secret))
		ev := makeEvent(messageUpdate)
		ev.Headers["X-Telegram-Bot-Api-Secret-Token"] = sign("other", messageUpdate)
		resp, err := h.Handle(context.Background(), ev)
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Empty(t, disp.queued)
	})

	t.Run("valid with lowercase header", func(t *testing.T) {
		h, _, disp := newTestHandler(t, WithWebhookSecret(secret))
		ev := makeEvent(messageUpdate)
		ev.Headers["x-telegram-bot-api-secret-token"] = sign(secret, messageUpdate)
		resp, err := h.Handle(context.Background(), ev)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, disp.queued, 1)
	})

	t.Run("checked before parsing", func(t *testing.T) {
		h, _, _ := newTestHandler(t, WithWebhookSecret(secret))
		resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
		require.NoError(t, err)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestHandle_Base64Body(t *testing.T) {
	h, _, disp := newTestHandler(t)
	ev := makeEvent(base64.StdEncoding.EncodeToString([]byte(messageUpdate)))
	ev.IsBase64Encoded = true

	resp, err := h.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, disp.queued, 1)
}

func TestHandle_EnqueueFailureStillAcknowledges(t *testing.T) {
	h, _, disp := newTestHandler(t)
	disp.err = dispatch.ErrClosed

	resp, err := h.Handle(context.Background(), makeEvent(messageUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, _, _ := newTestHandler(t)

	event := makeEvent(`{"update_id":1}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])

	resp, err = h.Handle(context.Background(), makeEvent(`bad`))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}
