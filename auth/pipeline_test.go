package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/database"
	"github.com/Krish-Depani/customer-auth-service/events"
	"github.com/Krish-Depani/customer-auth-service/models"
	"github.com/Krish-Depani/customer-auth-service/registry"
	"github.com/Krish-Depani/customer-auth-service/session"
	"github.com/Krish-Depani/customer-auth-service/throttle"
)

type staticLinks struct{ id uint }

func (s staticLinks) ConsumeMagicLink(context.Context, string) (uint, error) {
	if s.id == 0 {
		return 0, database.ErrSessionNotFound
	}
	return s.id, nil
}

func (f *fixture) login(a Attempt) (*Result, *session.Session, error) {
	sess := session.New()
	if a.WebsiteID == 0 {
		a.WebsiteID = 1
	}
	res, err := f.pipeline.Login(context.Background(), registry.New(f.store), sess, a)
	f.pipeline.Wait()
	return res, sess, err
}

func TestEveryStrategyResolves(t *testing.T) {
	f := newFixture(t, nil)

	for _, tag := range []string{StrategyEmail, StrategyPhone, StrategyGoogle, StrategyApple, StrategyMagicLink} {
		a, err := f.pipeline.Resolve(tag)
		require.NoError(t, err, tag)
		assert.NotNil(t, a, tag)
	}
	assert.Equal(t, []string{"apple", "email", "google", "magic_link", "phone"}, f.pipeline.Strategies())
}

func TestUnknownStrategyFailsBeforeStoreAccess(t *testing.T) {
	f := newFixture(t, nil, customer(t, 1, "jane@example.com", ""))

	for _, tag := range []string{"ldap", "Email", "EMAIL", " email", ""} {
		_, _, err := f.login(Attempt{Strategy: tag, Identifier: "jane@example.com", Password: testPassword})
		assert.Equal(t, apperr.KindUnsupportedStrategy, apperr.KindOf(err), tag)
	}
	assert.Zero(t, f.store.Calls())
	assert.Empty(t, f.issuer.issued)
}

func TestIdentifierShapeIsValidated(t *testing.T) {
	f := newFixture(t, nil, customer(t, 1, "jane@example.com", "+15551234567"))

	_, _, err := f.login(Attempt{Strategy: StrategyEmail, Identifier: "12345", Password: testPassword})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, _, err = f.login(Attempt{Strategy: StrategyPhone, Identifier: "jane@example.com", Password: testPassword})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, _, err = f.login(Attempt{Strategy: StrategyPhone, Identifier: "555-1234", Password: testPassword})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	assert.Zero(t, f.store.Calls())
}

func TestPhoneLoginAndThrottle(t *testing.T) {
	const phone = "+15551234567"
	f := newFixture(t, nil, customer(t, 7, "jane@example.com", phone))

	res, sess, err := f.login(Attempt{Strategy: StrategyPhone, Identifier: phone, Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, uint(7), res.User.ID)
	assert.True(t, sess.IsLoggedIn())
	assert.Zero(t, f.attempts(t, phone))

	_, _, err = f.login(Attempt{Strategy: StrategyPhone, Identifier: phone, Password: "wrong"})
	assert.Equal(t, apperr.KindBadCredentials, apperr.KindOf(err))

	for i := 0; i < 4; i++ {
		_, _, err = f.login(Attempt{Strategy: StrategyPhone, Identifier: phone, Password: "wrong"})
		assert.Equal(t, apperr.KindBadCredentials, apperr.KindOf(err))
	}
	assert.Equal(t, int64(5), f.attempts(t, phone))

	res, _, err = f.login(Attempt{Strategy: StrategyPhone, Identifier: phone, Password: testPassword})
	assert.Nil(t, res)
	assert.Equal(t, apperr.KindThrottled, apperr.KindOf(err))
	assert.Len(t, f.issuer.issued, 1)
}

func TestLastAttemptedIdentifierIsRecordedOnce(t *testing.T) {
	otherTenant := customer(t, 2, "other@example.com", "")
	otherTenant.WebsiteID = 9

	tests := []struct {
		name    string
		links   LinkStore
		prepare func(f *fixture)
		attempt Attempt
		kind    apperr.Kind
	}{
		{
			name:    "success",
			attempt: Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: testPassword},
		},
		{
			name:    "bad credentials",
			attempt: Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: "nope"},
			kind:    apperr.KindBadCredentials,
		},
		{
			name:    "unknown customer",
			attempt: Attempt{Strategy: StrategyEmail, Identifier: "nobody@example.com", Password: testPassword},
			kind:    apperr.KindBadCredentials,
		},
		{
			name:    "wrong tenant",
			links:   staticLinks{id: 2},
			attempt: Attempt{Strategy: StrategyMagicLink, Identifier: "other@example.com", MagicLinkToken: "t"},
			kind:    apperr.KindWrongTenant,
		},
		{
			name:    "unsupported strategy",
			attempt: Attempt{Strategy: "ldap", Identifier: "jane@example.com"},
			kind:    apperr.KindUnsupportedStrategy,
		},
		{
			name:    "validation",
			attempt: Attempt{Strategy: StrategyEmail, Identifier: "jane"},
			kind:    apperr.KindValidation,
		},
		{
			name: "throttled",
			prepare: func(f *fixture) {
				for i := 0; i < 5; i++ {
					require.NoError(t, f.limiter.Throttle(context.Background(), "jane@example.com", throttle.UserTypeCustomer))
				}
			},
			attempt: Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: testPassword},
			kind:    apperr.KindThrottled,
		},
		{
			name:    "unexpected error",
			prepare: func(f *fixture) { f.store.err = errors.New("connection refused") },
			attempt: Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: testPassword},
			kind:    apperr.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.links, customer(t, 1, "jane@example.com", ""), otherTenant)
			if tt.prepare != nil {
				tt.prepare(f)
			}

			_, sess, err := f.login(tt.attempt)
			if tt.kind == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.kind, apperr.KindOf(err))
			}
			assert.Equal(t, 1, sess.IdentifierWrites())
			assert.Equal(t, tt.attempt.Identifier, sess.LastAttemptedIdentifier())
		})
	}
}

func TestInformativeFailuresResetThrottle(t *testing.T) {
	u := customer(t, 1, "jane@example.com", "")
	now := time.Now()
	u.RpToken = "reset"
	u.RpTokenCreatedAt = &now
	f := newFixture(t, nil, u)

	require.NoError(t, f.limiter.Throttle(context.Background(), "jane@example.com", throttle.UserTypeCustomer))

	_, _, err := f.login(Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: testPassword})
	assert.Equal(t, apperr.KindResetPending, apperr.KindOf(err))
	assert.Zero(t, f.attempts(t, "jane@example.com"))
	assert.Empty(t, f.issuer.issued)
}

func TestUnconfirmedAccountShortCircuits(t *testing.T) {
	u := customer(t, 1, "jane@example.com", "")
	u.Confirmation = models.ConfirmationPending
	f := newFixture(t, nil, u)

	res, sess, err := f.login(Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmailUnconfirmed, res.Outcome)
	assert.Equal(t, "http://shop.test/customer/confirm/resend?email=jane%40example.com", res.ResendURL)
	assert.NotEmpty(t, res.Message)
	assert.Empty(t, res.Token)
	assert.False(t, sess.IsLoggedIn())
	assert.Zero(t, f.attempts(t, "jane@example.com"))
}

func TestUnexpectedErrorIsWrapped(t *testing.T) {
	f := newFixture(t, nil, customer(t, 1, "jane@example.com", ""))
	cause := errors.New("redis: connection pool timeout")
	f.issuer.err = cause

	_, _, err := f.login(Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: testPassword})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.ErrorIs(t, err, cause)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.NotContains(t, appErr.Message, "redis")
	assert.Zero(t, f.attempts(t, "jane@example.com"))
}

func TestCanceledRequestStillResetsThrottle(t *testing.T) {
	u := customer(t, 1, "jane@example.com", "")
	u.WebsiteID = 2
	f := newFixture(t, staticLinks{id: 1}, u)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.pipeline.Login(ctx, registry.New(f.store), session.New(),
		Attempt{Strategy: StrategyMagicLink, Identifier: "jane@example.com", MagicLinkToken: "t", WebsiteID: 1})
	assert.Equal(t, apperr.KindWrongTenant, apperr.KindOf(err))

	assert.Equal(t, 1, f.limiter.resets)
	assert.Zero(t, f.limiter.canceledResets)
	assert.Zero(t, f.attempts(t, "jane@example.com"))
}

func TestEventsAreOrderedAndCarryNoPassword(t *testing.T) {
	f := newFixture(t, nil, customer(t, 1, "jane@example.com", ""))

	_, _, err := f.login(Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: testPassword})
	require.NoError(t, err)

	assert.Equal(t, []string{
		events.CustomerAuthenticationBefore,
		events.CustomerAuthenticationAfter,
		events.CustomerAuthenticated,
	}, f.recorder.Names())

	for _, e := range f.recorder.Events {
		raw, err := json.Marshal(e.Payload)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), testPassword, e.Name)
		assert.NotContains(t, string(raw), "$2a$", e.Name)
	}
}

func TestFailedAttemptStillPublishesResult(t *testing.T) {
	f := newFixture(t, nil, customer(t, 1, "jane@example.com", ""))

	_, _, err := f.login(Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: "wrong"})
	require.Error(t, err)

	last, ok := f.recorder.Last(events.CustomerAuthenticationAfter)
	require.True(t, ok)
	payload := last.Payload.(ResultPayload)
	assert.False(t, payload.Authenticated)
	assert.Equal(t, "jane@example.com", payload.Identifier)

	_, ok = f.recorder.Last(events.CustomerAuthenticated)
	assert.False(t, ok)
}

func TestRememberMeRunsDetached(t *testing.T) {
	f := newFixture(t, nil, customer(t, 1, "jane@example.com", ""))

	ctx, cancel := context.WithCancel(context.Background())
	res, err := f.pipeline.Login(ctx, registry.New(f.store), session.New(),
		Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: testPassword, RememberMe: true, WebsiteID: 1})
	cancel()
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)

	f.pipeline.Wait()
	require.Len(t, f.remember.calls, 1)
	assert.Equal(t, rememberCall{userID: 1, remember: true}, f.remember.calls[0])
}

func TestMagicLinkLogin(t *testing.T) {
	f := newFixture(t, staticLinks{id: 1}, customer(t, 1, "jane@example.com", ""))

	res, _, err := f.login(Attempt{Strategy: StrategyMagicLink, MagicLinkToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, uint(1), res.User.ID)

	f = newFixture(t, staticLinks{}, customer(t, 1, "jane@example.com", ""))
	_, _, err = f.login(Attempt{Strategy: StrategyMagicLink, MagicLinkToken: "used"})
	assert.Equal(t, apperr.KindBadCredentials, apperr.KindOf(err))
}

func TestUnknownStrategyDoesNotCountAgainstIdentifier(t *testing.T) {
	f := newFixture(t, nil, customer(t, 1, "jane@example.com", ""))

	for i := 0; i < 10; i++ {
		_, _, err := f.login(Attempt{Strategy: "ldap", Identifier: "jane@example.com", Password: testPassword})
		require.Equal(t, apperr.KindUnsupportedStrategy, apperr.KindOf(err))
	}
	assert.Zero(t, f.attempts(t, "jane@example.com"))

	res, _, err := f.login(Attempt{Strategy: StrategyEmail, Identifier: "jane@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
}

func TestMagicLinkRespectsAccountState(t *testing.T) {
	pending := customer(t, 1, "jane@example.com", "")
	pending.Confirmation = models.ConfirmationPending
	f := newFixture(t, staticLinks{id: 1}, pending)

	res, sess, err := f.login(Attempt{Strategy: StrategyMagicLink, MagicLinkToken: "token"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmailUnconfirmed, res.Outcome)
	assert.Equal(t, "http://shop.test/customer/confirm/resend?email=jane%40example.com", res.ResendURL)
	assert.Empty(t, res.Token)
	assert.False(t, sess.IsLoggedIn())
	assert.Empty(t, f.issuer.issued)

	locked := customer(t, 1, "jane@example.com", "")
	until := time.Now().Add(time.Hour)
	locked.LockExpires = &until
	f = newFixture(t, staticLinks{id: 1}, locked)

	res, _, err = f.login(Attempt{Strategy: StrategyMagicLink, MagicLinkToken: "token"})
	assert.Nil(t, res)
	assert.Equal(t, apperr.KindBadCredentials, apperr.KindOf(err))
	assert.Empty(t, f.issuer.issued)
}
