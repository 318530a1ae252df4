package main

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"poizon-bot/internal/dispatch"
)

func TestDrainAfter_WaitsForQueuedWork(t *testing.T) {
	mailbox := dispatch.New(context.Background())
	var done atomic.Bool

	handle := func(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		err := mailbox.Enqueue(42, "message", func(context.Context) error {
			time.Sleep(20 * time.Millisecond)
			done.Store(true)
			return nil
		})
		require.NoError(t, err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
	}

	resp, err := drainAfter(handle, mailbox)(context.Background(), events.APIGatewayProxyRequest{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, done.Load())
	require.Zero(t, mailbox.Pending())
}

func TestDrainAfter_ReturnsAtDeadline(t *testing.T) {
	mailbox := dispatch.New(context.Background())
	release := make(chan struct{})
	defer close(release)
	var finished atomic.Bool

	handle := func(ctx context.Context, _ events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		require.NoError(t, mailbox.Enqueue(42, "message", func(context.Context) error {
			<-release
			finished.Store(true)
			return nil
		}))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp, err := drainAfter(handle, mailbox)(ctx, events.APIGatewayProxyRequest{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, finished.Load())
}
