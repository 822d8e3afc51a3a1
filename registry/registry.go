// Package registry caches customer records for the lifetime of one request.
//
// A record is owned by its ID. The email and phone indices only map a
// (value, website) pair to that ID, and the pairs a record was indexed under
// are remembered at insertion time. Evict therefore removes exactly the
// aliases that were created, even if the cached record has been mutated since.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/database"
	"github.com/Krish-Depani/customer-auth-service/models"
	"github.com/Krish-Depani/customer-auth-service/validators"
)

const separator = ":"

// Loader is the backing store consulted on a cache miss.
type Loader interface {
	LoadByID(ctx context.Context, id uint) (*models.User, error)
	LoadByEmail(ctx context.Context, email string, websiteID uint) (*models.User, error)
	LoadByPhone(ctx context.Context, phone string, websiteID uint) (*models.User, error)
}

type aliases struct {
	email string
	phone string
}

type Registry struct {
	mu      sync.RWMutex
	loader  Loader
	byID    map[uint]*models.User
	byEmail map[string]uint
	byPhone map[string]uint
	keys    map[uint]aliases
}

func New(loader Loader) *Registry {
	r := &Registry{loader: loader}
	r.reset()
	return r
}

func (r *Registry) GetByID(ctx context.Context, id uint) (*models.User, error) {
	r.mu.RLock()
	user, ok := r.byID[id]
	r.mu.RUnlock()
	if ok {
		return user, nil
	}

	user, err := r.loader.LoadByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "No customer found with id = %d.", id)
	}
	return r.store(user, false), nil
}

func (r *Registry) GetByEmail(ctx context.Context, email string, websiteID uint) (*models.User, error) {
	key := emailKey(email, websiteID)
	if user, ok := r.lookup(r.byEmailIndex, key); ok {
		return user, nil
	}

	user, err := r.loader.LoadByEmail(ctx, email, websiteID)
	if err != nil {
		return nil, notFound(err, "No customer found with email = %s, websiteId = %d.", email, websiteID)
	}
	return r.store(user, false), nil
}

func (r *Registry) GetByPhone(ctx context.Context, phone string, websiteID uint) (*models.User, error) {
	key := phoneKey(phone, websiteID)
	if user, ok := r.lookup(r.byPhoneIndex, key); ok {
		return user, nil
	}

	user, err := r.loader.LoadByPhone(ctx, phone, websiteID)
	if err != nil {
		return nil, notFound(err, "No customer found with phone = %s, websiteId = %d.", phone, websiteID)
	}
	return r.store(user, false), nil
}

// GetByIdentifier classifies identifier as a numeric ID, an email or a phone
// number, in that order, and looks it up accordingly.
func (r *Registry) GetByIdentifier(ctx context.Context, identifier string, websiteID uint) (*models.User, error) {
	switch {
	case validators.IsNumericID(identifier):
		id, err := strconv.ParseUint(identifier, 10, 64)
		if err != nil {
			return nil, apperr.NotFound("No customer found for the given identifier.")
		}
		return r.GetByID(ctx, uint(id))
	case validators.IsEmail(identifier):
		return r.GetByEmail(ctx, identifier, websiteID)
	case validators.IsPhone(identifier):
		return r.GetByPhone(ctx, identifier, websiteID)
	default:
		return nil, apperr.NotFound("No customer found for the given identifier.")
	}
}

// Put caches user under all of its keys, replacing any previous entry for the same ID.
func (r *Registry) Put(user *models.User) {
	r.store(user, true)
}

// Evict drops the user and every alias it was cached under.
func (r *Registry) Evict(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(id)
}

// ResetAll empties the cache. It runs at the end of every request.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) lookup(index func() map[string]uint, key string) (*models.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := index()[key]
	if !ok {
		return nil, false
	}
	user, ok := r.byID[id]
	return user, ok
}

func (r *Registry) byEmailIndex() map[string]uint { return r.byEmail }
func (r *Registry) byPhoneIndex() map[string]uint { return r.byPhone }

// store indexes user and returns the cached instance. A freshly loaded copy
// never replaces an instance that is already cached, so concurrent misses for
// the same ID still hand out one pointer.
func (r *Registry) store(user *models.User, overwrite bool) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[user.ID]; ok && !overwrite {
		return existing
	}

	r.evictLocked(user.ID)

	a := aliases{email: emailKey(user.Email, user.WebsiteID)}
	r.byEmail[a.email] = user.ID
	if phone := user.PhoneNumber(); phone != "" {
		a.phone = phoneKey(phone, user.WebsiteID)
		r.byPhone[a.phone] = user.ID
	}
	r.byID[user.ID] = user
	r.keys[user.ID] = a
	return user
}

func (r *Registry) evictLocked(id uint) {
	a, ok := r.keys[id]
	if !ok {
		return
	}
	if r.byEmail[a.email] == id {
		delete(r.byEmail, a.email)
	}
	if a.phone != "" && r.byPhone[a.phone] == id {
		delete(r.byPhone, a.phone)
	}
	delete(r.byID, id)
	delete(r.keys, id)
}

func (r *Registry) reset() {
	r.byID = make(map[uint]*models.User)
	r.byEmail = make(map[string]uint)
	r.byPhone = make(map[string]uint)
	r.keys = make(map[uint]aliases)
}

func emailKey(email string, websiteID uint) string {
	return strings.ToLower(email) + separator + strconv.FormatUint(uint64(websiteID), 10)
}

func phoneKey(phone string, websiteID uint) string {
	return phone + separator + strconv.FormatUint(uint64(websiteID), 10)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, database.ErrUserNotFound) {
		return apperr.NotFound(format, args...)
	}
	return fmt.Errorf("load customer: %w", err)
}
