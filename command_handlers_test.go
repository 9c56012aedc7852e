package optin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	optin "github.com/goliatone/go-optin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSessionHandlerExecute(t *testing.T) {
	m, store, _ := newTestManager(t)
	m.RegisterAgent("newsletter")

	var res *optin.StartSessionResponse
	err := optin.NewStartSessionHandler(m).Execute(context.Background(), optin.StartSessionMessage{
		Agent:      "newsletter",
		Properties: map[string]any{"list": "weekly"},
		OnResponse: func(resp *optin.StartSessionResponse) {
			res = resp
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Success)
	assert.Len(t, res.Token, optin.DefaultTokenLength)
	assert.Equal(t, res.Entry.ID.String(), res.EntryID)
	assert.Equal(t, 1, store.Len())
}

func TestStartSessionHandlerValidation(t *testing.T) {
	m, store, _ := newTestManager(t)

	err := optin.NewStartSessionHandler(m).Execute(context.Background(), optin.StartSessionMessage{})
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
	assert.Equal(t, 0, store.Len())
}

func TestStartSessionHandlerUnknownAgent(t *testing.T) {
	m, _, _ := newTestManager(t)

	called := false
	err := optin.NewStartSessionHandler(m).Execute(context.Background(), optin.StartSessionMessage{
		Agent:      "ghost",
		OnResponse: func(*optin.StartSessionResponse) { called = true },
	})
	require.Error(t, err)
	assert.False(t, called)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, optin.TextCodeAgentNotFound, richErr.TextCode)
}

func TestStartSessionHandlerCancelledContext(t *testing.T) {
	m, store, _ := newTestManager(t)
	m.RegisterAgent("newsletter")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := optin.NewStartSessionHandler(m).Execute(ctx, optin.StartSessionMessage{Agent: "newsletter"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, store.Len())
}

func TestVerifyTokenHandlerExecute(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.RegisterAgent("newsletter")

	entry, err := m.StartSession(context.Background(), "newsletter", nil)
	require.NoError(t, err)

	var res *optin.VerifyTokenResponse
	err = optin.NewVerifyTokenHandler(m).Execute(context.Background(), optin.VerifyTokenMessage{
		Token:      entry.Token,
		OnResponse: func(resp *optin.VerifyTokenResponse) { res = resp },
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Found)
	assert.True(t, res.OptedIn)
	assert.False(t, res.Expired)
	assert.Equal(t, entry.ID.String(), res.EntryID)
	assert.Equal(t, "newsletter", res.AgentName)
}

func TestVerifyTokenHandlerExpired(t *testing.T) {
	m, _, clock := newTestManager(t)
	m.RegisterAgent("slowflow", optin.WithAcceptancePeriod(time.Second))

	entry, err := m.StartSession(context.Background(), "slowflow", nil)
	require.NoError(t, err)
	clock.Advance(2 * time.Second)

	var res *optin.VerifyTokenResponse
	err = optin.NewVerifyTokenHandler(m).Execute(context.Background(), optin.VerifyTokenMessage{
		Token:      entry.Token,
		OnResponse: func(resp *optin.VerifyTokenResponse) { res = resp },
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Expired)
	assert.False(t, res.OptedIn)
}

func TestVerifyTokenHandlerEmptyToken(t *testing.T) {
	m, _, _ := newTestManager(t)

	var res *optin.VerifyTokenResponse
	err := optin.NewVerifyTokenHandler(m).Execute(context.Background(), optin.VerifyTokenMessage{
		OnResponse: func(resp *optin.VerifyTokenResponse) { res = resp },
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Found)
	assert.False(t, res.OptedIn)
}

func TestVerifyTokenHandlerCallbackFailure(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.RegisterAgent("newsletter", optin.WithOptinCallback(func(context.Context) error {
		return errors.New("mailer offline")
	}))

	entry, err := m.StartSession(context.Background(), "newsletter", nil)
	require.NoError(t, err)

	var res *optin.VerifyTokenResponse
	err = optin.NewVerifyTokenHandler(m).Execute(context.Background(), optin.VerifyTokenMessage{
		Token:      entry.Token,
		OnResponse: func(resp *optin.VerifyTokenResponse) { res = resp },
	})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.OptedIn)
}

func TestMessageTypes(t *testing.T) {
	assert.Equal(t, "optin.session.start", optin.StartSessionMessage{}.Type())
	assert.Equal(t, "optin.token.verify", optin.VerifyTokenMessage{}.Type())
}
