package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/url"
	"strings"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/auth"
	"github.com/Krish-Depani/customer-auth-service/events"
	"github.com/Krish-Depani/customer-auth-service/session"
	"github.com/Krish-Depani/customer-auth-service/throttle"
	"github.com/Krish-Depani/customer-auth-service/validators"
)

type PasswordResetPayload struct {
	CustomerID uint   `json:"customer_id"`
	Email      string `json:"email"`
	ResetURL   string `json:"reset_url,omitempty"`
}

type MagicLinkPayload struct {
	CustomerID uint   `json:"customer_id"`
	Email      string `json:"email"`
	LoginURL   string `json:"login_url"`
}

// ForgotPassword starts a password reset. Unknown emails succeed silently.
func (s *AccountService) ForgotPassword(ctx context.Context, cache Cache, req validators.ForgotPasswordRequest, websiteID uint) error {
	if err := validators.Check(req); err != nil {
		return err
	}
	email := strings.TrimSpace(req.Email)
	if !validators.IsEmail(email) {
		return apperr.ValidationFields([]apperr.FieldError{{Field: "email", Tag: "email", Message: "The email address is invalid."}})
	}

	if err := s.throttle.Throttle(ctx, email, throttle.UserTypePasswordReset); err != nil {
		return s.domainOr("forgot password", err)
	}

	user, err := cache.GetByEmail(ctx, email, websiteID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil
	}
	if err != nil {
		return s.internal("forgot password", err)
	}

	now := s.now()
	user.RpToken = newToken()
	user.RpTokenCreatedAt = &now
	if err := s.store.Save(ctx, user); err != nil {
		cache.Evict(user.ID)
		return s.internal("forgot password", err)
	}
	cache.Put(user)

	s.events.Publish(ctx, events.CustomerPasswordResetRequest, PasswordResetPayload{
		CustomerID: user.ID,
		Email:      user.Email,
		ResetURL: s.link("/customer/reset-password", url.Values{
			"id":    {fmt.Sprint(user.ID)},
			"token": {user.RpToken},
		}),
	})
	return nil
}

// ResetPassword sets a new password using the token from ForgotPassword. All
// sessions of the customer are revoked and the current session is logged out.
func (s *AccountService) ResetPassword(ctx context.Context, cache Cache, sess session.Context, req validators.ResetPasswordRequest) error {
	if err := validators.Check(req); err != nil {
		return err
	}
	if err := s.checkPassword("new_password", req.NewPassword); err != nil {
		return err
	}

	user, err := cache.GetByID(ctx, req.IdentityID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return tokenMismatch()
	}
	if err != nil {
		return s.internal("reset password", err)
	}

	if !user.HasPendingReset() || subtle.ConstantTimeCompare([]byte(user.RpToken), []byte(req.Token)) != 1 {
		return tokenMismatch()
	}
	if s.now().Sub(*user.RpTokenCreatedAt) > s.opts.ResetTokenTTL {
		return apperr.BadCredentials("The password token is expired. Reset and try again.")
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return s.internal("hash password", err)
	}

	cache.Evict(user.ID)
	user.PasswordHash = hash
	user.RpToken = ""
	user.RpTokenCreatedAt = nil
	user.FailuresNum = 0
	user.FirstFailure = nil
	user.LockExpires = nil
	if err := s.store.Save(ctx, user); err != nil {
		return s.internal("reset password", err)
	}
	cache.Put(user)

	if err := s.sessions.Revoke(ctx, user.ID); err != nil {
		return s.internal("revoke tokens", err)
	}
	sess.Logout()
	s.resetThrottle(ctx, user.Email, throttle.UserTypePasswordReset)
	s.resetThrottle(ctx, user.Email, throttle.UserTypeCustomer)

	s.events.Publish(ctx, events.CustomerPasswordReset, PasswordResetPayload{CustomerID: user.ID, Email: user.Email})
	return nil
}

// RequestMagicLink emails a single-use login link. Unknown emails succeed silently.
func (s *AccountService) RequestMagicLink(ctx context.Context, cache Cache, req validators.MagicLinkRequest, websiteID uint) error {
	if err := validators.Check(req); err != nil {
		return err
	}

	if err := s.throttle.Throttle(ctx, req.Email, throttle.UserTypeMagicLink); err != nil {
		return s.domainOr("magic link", err)
	}

	user, err := cache.GetByEmail(ctx, req.Email, websiteID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil
	}
	if err != nil {
		return s.internal("magic link", err)
	}

	token := newToken()
	if err := s.links.SetMagicLink(ctx, token, user.ID, s.opts.MagicLinkTTL); err != nil {
		return s.internal("magic link", err)
	}

	s.events.Publish(ctx, events.CustomerMagicLinkRequest, MagicLinkPayload{
		CustomerID: user.ID,
		Email:      user.Email,
		LoginURL: s.link("/customer/login", url.Values{
			"strategy":         {auth.StrategyMagicLink},
			"magic_link_token": {token},
		}),
	})
	return nil
}

func tokenMismatch() error {
	return apperr.BadCredentials("The password token is mismatched. Reset and try again.")
}
