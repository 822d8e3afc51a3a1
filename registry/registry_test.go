package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/database"
	"github.com/Krish-Depani/customer-auth-service/models"
)

type countingLoader struct {
	mu    sync.Mutex
	users map[uint]models.User
	calls int
	err   error
}

func newLoader(users ...models.User) *countingLoader {
	l := &countingLoader{users: map[uint]models.User{}}
	for _, u := range users {
		l.users[u.ID] = u
	}
	return l
}

func (l *countingLoader) find(match func(models.User) bool) (*models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	for _, u := range l.users {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, database.ErrUserNotFound
}

func (l *countingLoader) LoadByID(_ context.Context, id uint) (*models.User, error) {
	return l.find(func(u models.User) bool { return u.ID == id })
}

func (l *countingLoader) LoadByEmail(_ context.Context, email string, websiteID uint) (*models.User, error) {
	return l.find(func(u models.User) bool { return u.Email == email && u.WebsiteID == websiteID })
}

func (l *countingLoader) LoadByPhone(_ context.Context, phone string, websiteID uint) (*models.User, error) {
	return l.find(func(u models.User) bool { return u.PhoneNumber() == phone && u.WebsiteID == websiteID })
}

func (l *countingLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func phone(s string) *string { return &s }

func sampleUser() models.User {
	return models.User{ID: 7, Email: "a@x.com", Phone: phone("+15551234567"), WebsiteID: 1}
}

func TestPutMakesAllKeysReturnSameInstance(t *testing.T) {
	ctx := context.Background()
	loader := newLoader()
	reg := New(loader)

	user := sampleUser()
	reg.Put(&user)

	byID, err := reg.GetByID(ctx, 7)
	require.NoError(t, err)
	byEmail, err := reg.GetByEmail(ctx, "a@x.com", 1)
	require.NoError(t, err)
	byPhone, err := reg.GetByPhone(ctx, "+15551234567", 1)
	require.NoError(t, err)

	assert.Same(t, &user, byID)
	assert.Same(t, byID, byEmail)
	assert.Same(t, byID, byPhone)
	assert.Equal(t, 0, loader.Calls())
}

func TestLoadByOneKeyPopulatesOthers(t *testing.T) {
	ctx := context.Background()
	loader := newLoader(sampleUser())
	reg := New(loader)

	byEmail, err := reg.GetByEmail(ctx, "a@x.com", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.Calls())

	byPhone, err := reg.GetByPhone(ctx, "+15551234567", 1)
	require.NoError(t, err)
	byID, err := reg.GetByID(ctx, 7)
	require.NoError(t, err)

	assert.Same(t, byEmail, byPhone)
	assert.Same(t, byEmail, byID)
	assert.Equal(t, 1, loader.Calls())
}

func TestEvictRemovesAllKeys(t *testing.T) {
	ctx := context.Background()
	loader := newLoader(sampleUser())
	reg := New(loader)

	_, err := reg.GetByID(ctx, 7)
	require.NoError(t, err)
	reg.Evict(7)
	assert.Equal(t, 0, reg.Len())

	loader.err = errors.New("store down")
	_, err = reg.GetByEmail(ctx, "a@x.com", 1)
	assert.Error(t, err)
	_, err = reg.GetByPhone(ctx, "+15551234567", 1)
	assert.Error(t, err)

	loader.err = nil
	before := loader.Calls()
	_, err = reg.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, before+1, loader.Calls())
}

func TestEvictRemovesAliasesOfMutatedRecord(t *testing.T) {
	ctx := context.Background()
	loader := newLoader(sampleUser())
	reg := New(loader)

	user, err := reg.GetByID(ctx, 7)
	require.NoError(t, err)

	user.Email = "changed@x.com"
	user.Phone = phone("+15550000000")
	reg.Evict(7)

	loader.err = errors.New("store down")
	_, err = reg.GetByEmail(ctx, "a@x.com", 1)
	assert.Error(t, err, "stale email alias must not survive eviction")
	_, err = reg.GetByPhone(ctx, "+15551234567", 1)
	assert.Error(t, err, "stale phone alias must not survive eviction")
}

func TestPutReindexesChangedKeys(t *testing.T) {
	ctx := context.Background()
	loader := newLoader()
	reg := New(loader)

	user := sampleUser()
	reg.Put(&user)
	user.Email = "new@x.com"
	reg.Put(&user)

	got, err := reg.GetByEmail(ctx, "new@x.com", 1)
	require.NoError(t, err)
	assert.Same(t, &user, got)

	_, err = reg.GetByEmail(ctx, "a@x.com", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestLookupsFailWithTypedNotFound(t *testing.T) {
	ctx := context.Background()
	reg := New(newLoader())

	_, err := reg.GetByID(ctx, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = reg.GetByEmail(ctx, "nobody@x.com", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = reg.GetByPhone(ctx, "+15559999999", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStoreErrorsAreNotNotFound(t *testing.T) {
	loader := newLoader()
	loader.err = errors.New("connection reset")
	reg := New(loader)

	_, err := reg.GetByID(context.Background(), 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperr.ErrNotFound))
}

func TestGetByIdentifierDispatch(t *testing.T) {
	ctx := context.Background()
	reg := New(newLoader(sampleUser()))

	for _, identifier := range []string{"7", "a@x.com", "+15551234567"} {
		user, err := reg.GetByIdentifier(ctx, identifier, 1)
		require.NoError(t, err, identifier)
		assert.Equal(t, uint(7), user.ID, identifier)
	}

	_, err := reg.GetByIdentifier(ctx, "not an identifier", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEmailKeyIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	reg := New(newLoader(sampleUser()))

	_, err := reg.GetByEmail(ctx, "a@x.com", 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResetAll(t *testing.T) {
	ctx := context.Background()
	loader := newLoader(sampleUser())
	reg := New(loader)

	_, err := reg.GetByID(ctx, 7)
	require.NoError(t, err)
	reg.ResetAll()
	assert.Equal(t, 0, reg.Len())

	_, err = reg.GetByEmail(ctx, "a@x.com", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.Calls())
}

func TestConcurrentAccessKeepsIndicesConsistent(t *testing.T) {
	ctx := context.Background()
	reg := New(newLoader(sampleUser()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = reg.GetByEmail(ctx, "a@x.com", 1)
		}()
		go func() {
			defer wg.Done()
			reg.Evict(7)
		}()
		go func() {
			defer wg.Done()
			_, _ = reg.GetByPhone(ctx, "+15551234567", 1)
		}()
	}
	wg.Wait()

	byID, err := reg.GetByID(ctx, 7)
	require.NoError(t, err)
	byEmail, err := reg.GetByEmail(ctx, "a@x.com", 1)
	require.NoError(t, err)
	assert.Same(t, byID, byEmail)
}
