package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/models"
	"github.com/Krish-Depani/customer-auth-service/registry"
)

func TestVerifyLocksAfterRepeatedFailures(t *testing.T) {
	store := newMemoryStore(customer(t, 1, "jane@example.com", ""))
	creds := NewCredentialStore(store, 3, 10*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	creds.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		user, err := creds.Verify(ctx, registry.New(store), "jane@example.com", "wrong", 1)
		require.NoError(t, err)
		assert.Nil(t, user)
		assert.Equal(t, i, store.User(1).FailuresNum)
	}
	require.NotNil(t, store.User(1).LockExpires)

	_, err := creds.Verify(ctx, registry.New(store), "jane@example.com", testPassword, 1)
	assert.Equal(t, apperr.KindBadCredentials, apperr.KindOf(err))

	now = now.Add(11 * time.Minute)
	user, err := creds.Verify(ctx, registry.New(store), "jane@example.com", testPassword, 1)
	require.NoError(t, err)
	require.NotNil(t, user)

	stored := store.User(1)
	assert.Zero(t, stored.FailuresNum)
	assert.Nil(t, stored.FirstFailure)
	assert.Nil(t, stored.LockExpires)
}

func TestVerifyRestartsFailureWindow(t *testing.T) {
	store := newMemoryStore(customer(t, 1, "jane@example.com", ""))
	creds := NewCredentialStore(store, 3, 10*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	creds.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := creds.Verify(ctx, registry.New(store), "jane@example.com", "wrong", 1)
	require.NoError(t, err)
	_, err = creds.Verify(ctx, registry.New(store), "jane@example.com", "wrong", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, store.User(1).FailuresNum)

	now = now.Add(time.Hour)
	_, err = creds.Verify(ctx, registry.New(store), "jane@example.com", "wrong", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.User(1).FailuresNum)
	assert.Nil(t, store.User(1).LockExpires)
}

func TestVerifyUnknownAndUnconfirmed(t *testing.T) {
	u := customer(t, 1, "jane@example.com", "")
	u.Confirmation = models.ConfirmationPending
	store := newMemoryStore(u)
	creds := NewCredentialStore(store, 3, time.Minute)
	ctx := context.Background()

	user, err := creds.Verify(ctx, registry.New(store), "nobody@example.com", testPassword, 1)
	require.NoError(t, err)
	assert.Nil(t, user)

	_, err = creds.Verify(ctx, registry.New(store), "jane@example.com", testPassword, 1)
	assert.ErrorIs(t, err, apperr.ErrEmailUnconfirmed)
}

func TestVerifyByCustomerID(t *testing.T) {
	store := newMemoryStore(customer(t, 42, "jane@example.com", ""))
	creds := NewCredentialStore(store, 3, time.Minute)

	user, err := creds.Verify(context.Background(), registry.New(store), "42", testPassword, 1)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, uint(42), user.ID)
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("s3cret-pass")))
}
