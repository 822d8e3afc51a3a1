package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Krish-Depani/customer-auth-service/events"
)

// LastLoginStore records successful logins.
type LastLoginStore interface {
	UpdateLastLogin(ctx context.Context, id uint, at time.Time) error
}

// LastLoginListener stamps the customer's last login when a token was issued.
func LastLoginListener(store LastLoginStore, log *zap.Logger) events.Handler {
	return func(ctx context.Context, payload any) {
		p, ok := payload.(AuthenticatedPayload)
		if !ok || p.User == nil {
			return
		}

		now := time.Now()
		if err := store.UpdateLastLogin(ctx, p.User.ID, now); err != nil {
			log.Warn("failed to update last login", zap.Uint("user_id", p.User.ID), zap.Error(err))
			return
		}
		p.User.LastLogin = &now
	}
}

// SessionMarker flags a customer's active sessions as remembered.
type SessionMarker interface {
	MarkRememberMe(ctx context.Context, userID uint, remember bool) error
}

// PreferenceStore keeps the remember-me preference between sessions.
type PreferenceStore interface {
	SetRememberMe(ctx context.Context, userID uint, remember bool, ttl time.Duration) error
}

// RememberMe persists the remember-me choice made at login.
type RememberMe struct {
	preferences PreferenceStore
	sessions    SessionMarker
	ttl         time.Duration
}

func NewRememberMe(preferences PreferenceStore, sessions SessionMarker, ttl time.Duration) *RememberMe {
	return &RememberMe{preferences: preferences, sessions: sessions, ttl: ttl}
}

func (r *RememberMe) Remember(ctx context.Context, userID uint, remember bool) error {
	if err := r.preferences.SetRememberMe(ctx, userID, remember, r.ttl); err != nil {
		return err
	}
	if r.sessions == nil {
		return nil
	}
	return r.sessions.MarkRememberMe(ctx, userID, remember)
}
