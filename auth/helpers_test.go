package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/Krish-Depani/customer-auth-service/database"
	"github.com/Krish-Depani/customer-auth-service/events"
	"github.com/Krish-Depani/customer-auth-service/models"
	"github.com/Krish-Depani/customer-auth-service/throttle"
	"github.com/Krish-Depani/customer-auth-service/tokens"
)

const testPassword = "correct-horse"

// memoryStore is a customer store that counts every access.
type memoryStore struct {
	mu    sync.Mutex
	users map[uint]models.User
	calls int
	err   error
}

func newMemoryStore(users ...models.User) *memoryStore {
	s := &memoryStore{users: map[uint]models.User{}}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *memoryStore) find(match func(models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	for _, u := range s.users {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, database.ErrUserNotFound
}

func (s *memoryStore) LoadByID(_ context.Context, id uint) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.ID == id })
}

func (s *memoryStore) LoadByEmail(_ context.Context, email string, websiteID uint) (*models.User, error) {
	return s.find(func(u models.User) bool { return strings.EqualFold(u.Email, email) && u.WebsiteID == websiteID })
}

func (s *memoryStore) LoadByPhone(_ context.Context, phone string, websiteID uint) (*models.User, error) {
	return s.find(func(u models.User) bool { return u.PhoneNumber() == phone && u.WebsiteID == websiteID })
}

func (s *memoryStore) Save(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.users[user.ID] = *user
	return nil
}

func (s *memoryStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *memoryStore) User(id uint) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

type fakeIssuer struct {
	mu     sync.Mutex
	issued []uint
	err    error
}

func (f *fakeIssuer) Issue(_ context.Context, userID uint, _ tokens.Meta) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.issued = append(f.issued, userID)
	return "token-" + time.Now().Format(time.RFC3339Nano), nil
}

// contextLimiter records whether the context handed to a reset was already done.
type contextLimiter struct {
	*throttle.Throttler
	mu             sync.Mutex
	resets         int
	canceledResets int
}

func (l *contextLimiter) ResetOnSuccess(ctx context.Context, identifier string, userType throttle.UserType) error {
	l.record(ctx)
	return l.Throttler.ResetOnSuccess(ctx, identifier, userType)
}

func (l *contextLimiter) ResetOnError(ctx context.Context, identifier string, userType throttle.UserType) error {
	l.record(ctx)
	return l.Throttler.ResetOnError(ctx, identifier, userType)
}

func (l *contextLimiter) record(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resets++
	if ctx.Err() != nil {
		l.canceledResets++
	}
}

type rememberCall struct {
	userID   uint
	remember bool
	ctxErr   error
}

type fakeRememberer struct {
	mu    sync.Mutex
	calls []rememberCall
}

func (f *fakeRememberer) Remember(ctx context.Context, userID uint, remember bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rememberCall{userID: userID, remember: remember, ctxErr: ctx.Err()})
	return nil
}

type brokenLinks struct{}

func (brokenLinks) ConsumeMagicLink(context.Context, string) (uint, error) {
	return 0, errors.New("redis unavailable")
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func strPtr(s string) *string { return &s }

func customer(t *testing.T, id uint, email, phone string) models.User {
	u := models.User{
		ID:           id,
		Email:        email,
		WebsiteID:    1,
		PasswordHash: hash(t, testPassword),
		FirstName:    "Jane",
		LastName:     "Doe",
		Confirmation: models.ConfirmationNotRequired,
	}
	if phone != "" {
		u.Phone = strPtr(phone)
	}
	return u
}

type fixture struct {
	store    *memoryStore
	limiter  *contextLimiter
	issuer   *fakeIssuer
	recorder *events.Recorder
	remember *fakeRememberer
	pipeline *Pipeline
}

func newFixture(t *testing.T, links LinkStore, users ...models.User) *fixture {
	t.Helper()

	f := &fixture{
		store: newMemoryStore(users...),
		limiter: &contextLimiter{Throttler: throttle.New(throttle.NewMemoryStore(), map[throttle.UserType]throttle.Limit{
			throttle.UserTypeCustomer: {MaxAttempts: 5, Window: 15 * time.Minute},
		})},
		issuer:   &fakeIssuer{},
		recorder: &events.Recorder{},
		remember: &fakeRememberer{},
	}
	if links == nil {
		links = brokenLinks{}
	}

	verifier := NewCredentialStore(f.store, 10, 10*time.Minute)
	f.pipeline = NewPipeline(PipelineConfig{
		Strategies: NewStrategies(verifier, links,
			ProviderConfig{ClientID: "id", ClientSecret: "secret", UserInfoURL: "http://127.0.0.1:1/userinfo"},
			ProviderConfig{ClientID: "id", ClientSecret: "secret", UserInfoURL: "http://127.0.0.1:1/userinfo"},
		),
		Throttle:        f.limiter,
		Tokens:          f.issuer,
		Events:          f.recorder,
		Remember:        f.remember,
		Logger:          zaptest.NewLogger(t),
		ConfirmationURL: "http://shop.test/customer/confirm/resend",
	})
	return f
}

func (f *fixture) attempts(t *testing.T, identifier string) int64 {
	t.Helper()
	n, err := f.limiter.Attempts(context.Background(), identifier, throttle.UserTypeCustomer)
	require.NoError(t, err)
	return n
}
