package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"assistant/backend/internal/domain"
	"assistant/backend/internal/secret"
	"assistant/backend/internal/storage"
	"assistant/backend/internal/storage/memory"
)

func newAccountService(t *testing.T) (*AccountService, *secret.Sealer) {
	t.Helper()
	sealer, err := secret.NewSealer(testSecretKey)
	require.NoError(t, err)
	return NewAccountService(memory.NewStore(), sealer, zap.NewNop()), sealer
}

func TestAccountService_Create(t *testing.T) {
	svc, sealer := newAccountService(t)

	account, err := svc.Create(context.Background(), "user-1", CreateAccountInput{
		Label:        " Personal ",
		EmailAddress: "me@example.com",
		Password:     "hunter2",
	})
	require.NoError(t, err)

	assert.Equal(t, "Personal", account.Label)
	assert.Equal(t, domain.ProviderIMAP, account.Provider)
	assert.Equal(t, domain.DefaultIMAPPort, account.IMAPPort)
	assert.Equal(t, domain.DefaultSMTPPort, account.SMTPPort)
	assert.True(t, account.IMAPUseSSL)
	assert.True(t, account.IsActive)
	assert.True(t, account.HasSecret())
	assert.NotEqual(t, "hunter2", account.Secret)

	opened, err := sealer.Open(account.Secret)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", opened)
}

func TestAccountService_Create_Invalid(t *testing.T) {
	svc, _ := newAccountService(t)

	tests := []struct {
		name  string
		input CreateAccountInput
	}{
		{"missing label", CreateAccountInput{EmailAddress: "me@example.com"}},
		{"bad email", CreateAccountInput{Label: "x", EmailAddress: "nope"}},
		{"bad provider", CreateAccountInput{Label: "x", EmailAddress: "me@example.com", Provider: "aol"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "user-1", tt.input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestAccountService_Update(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	account, err := svc.Create(ctx, "user-1", CreateAccountInput{
		Label:        "Personal",
		EmailAddress: "me@example.com",
		Password:     "hunter2",
	})
	require.NoError(t, err)
	originalSecret := account.Secret

	label := "Renamed"
	inactive := false
	updated, err := svc.Update(ctx, "user-1", account.ID, UpdateAccountInput{Label: &label, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Label)
	assert.False(t, updated.IsActive)
	assert.Equal(t, originalSecret, updated.Secret, "secret is kept when no password is given")

	empty := ""
	updated, err = svc.Update(ctx, "user-1", account.ID, UpdateAccountInput{Password: &empty})
	require.NoError(t, err)
	assert.False(t, updated.HasSecret())

	_, err = svc.Update(ctx, "user-2", account.ID, UpdateAccountInput{Label: &label})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	blank := " "
	_, err = svc.Update(ctx, "user-1", account.ID, UpdateAccountInput{Label: &blank})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAccountService_ListAndDelete(t *testing.T) {
	svc, _ := newAccountService(t)
	ctx := context.Background()

	for _, label := range []string{"Work", "Home"} {
		_, err := svc.Create(ctx, "user-1", CreateAccountInput{Label: label, EmailAddress: "me@example.com"})
		require.NoError(t, err)
	}

	accounts, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Home", accounts[0].Label)

	require.NoError(t, svc.Delete(ctx, "user-1", accounts[0].ID))
	assert.ErrorIs(t, svc.Delete(ctx, "user-1", accounts[0].ID), storage.ErrNotFound)

	accounts, err = svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}
