// Package throttle limits failed authentication attempts per identifier.
package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Krish-Depani/customer-auth-service/apperr"
)

type UserType string

const (
	UserTypeCustomer      UserType = "customer"
	UserTypePasswordReset UserType = "password_reset"
	UserTypeMagicLink     UserType = "magic_link"
)

// Store keeps one counter per key that expires window after its first increment.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Limit struct {
	MaxAttempts int
	Window      time.Duration
}

type Throttler struct {
	store  Store
	limits map[UserType]Limit
}

func New(store Store, limits map[UserType]Limit) *Throttler {
	return &Throttler{store: store, limits: limits}
}

// Throttle counts an attempt for identifier and fails with a Throttled error
// once the count inside the window exceeds the configured maximum.
func (t *Throttler) Throttle(ctx context.Context, identifier string, userType UserType) error {
	limit, ok := t.limits[userType]
	if !ok {
		return fmt.Errorf("throttle: no limit configured for %q", userType)
	}

	count, err := t.store.Incr(ctx, key(identifier, userType), limit.Window)
	if err != nil {
		return fmt.Errorf("throttle: %w", err)
	}
	if count > int64(limit.MaxAttempts) {
		return apperr.New(apperr.KindThrottled,
			"Too many attempts. Please try again in %s.", limit.Window.Round(time.Second))
	}
	return nil
}

// ResetOnSuccess clears the counter after a successful authentication.
func (t *Throttler) ResetOnSuccess(ctx context.Context, identifier string, userType UserType) error {
	return t.reset(ctx, identifier, userType)
}

// ResetOnError clears the counter after a failure that is not an attack signal.
func (t *Throttler) ResetOnError(ctx context.Context, identifier string, userType UserType) error {
	return t.reset(ctx, identifier, userType)
}

func (t *Throttler) Attempts(ctx context.Context, identifier string, userType UserType) (int64, error) {
	return t.store.Get(ctx, key(identifier, userType))
}

func (t *Throttler) reset(ctx context.Context, identifier string, userType UserType) error {
	if err := t.store.Reset(ctx, key(identifier, userType)); err != nil {
		return fmt.Errorf("throttle reset: %w", err)
	}
	return nil
}

func key(identifier string, userType UserType) string {
	return string(userType) + ":" + strings.ToLower(strings.TrimSpace(identifier))
}
