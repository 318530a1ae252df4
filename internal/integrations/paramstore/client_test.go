package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	lastIn *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	return f.getOut, f.getErr
}

func valueOut(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p"), Value: aws.String(v)}}
}

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: valueOut(`{"token":"abc"}`)}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), " /bot/telegram-token ")
	require.NoError(t, err)
	require.Equal(t, `{"token":"abc"}`, v)
	require.Equal(t, "/bot/telegram-token", *api.lastIn.Name)
	require.True(t, *api.lastIn.WithDecryption)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p")}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_NotFound(t *testing.T) {
	api := &fakeAPI{getErr: &types.ParameterNotFound{Message: aws.String("nope")}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "/bot/webhook-secret")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

func TestToken(t *testing.T) {
	client, err := New(&fakeAPI{getOut: valueOut(`{"token":"123:ABC"}`)})
	require.NoError(t, err)
	tok, err := Token(context.Background(), client, "p")
	require.NoError(t, err)
	require.Equal(t, "123:ABC", tok)
}

func TestToken_RejectsBadPayloads(t *testing.T) {
	for _, raw := range []string{`not-json`, `{"token":""}`, `{}`} {
		client, err := New(&fakeAPI{getOut: valueOut(raw)})
		require.NoError(t, err)
		_, err = Token(context.Background(), client, "p")
		require.Error(t, err, raw)
	}
}

func TestOptionalToken(t *testing.T) {
	client, err := New(&fakeAPI{getErr: &types.ParameterNotFound{Message: aws.String("nope")}})
	require.NoError(t, err)
	tok, err := OptionalToken(context.Background(), client, "p")
	require.NoError(t, err)
	require.Empty(t, tok)

	client, err = New(&fakeAPI{getErr: errors.New("throttled")})
	require.NoError(t, err)
	_, err = OptionalToken(context.Background(), client, "p")
	require.Error(t, err)
}
