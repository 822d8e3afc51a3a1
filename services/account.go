// Package services implements the customer account operations behind the
// HTTP API: registration, confirmation, password recovery, logout and profile.
package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/auth"
	"github.com/Krish-Depani/customer-auth-service/database"
	"github.com/Krish-Depani/customer-auth-service/events"
	"github.com/Krish-Depani/customer-auth-service/logger"
	"github.com/Krish-Depani/customer-auth-service/models"
	"github.com/Krish-Depani/customer-auth-service/session"
	"github.com/Krish-Depani/customer-auth-service/throttle"
	"github.com/Krish-Depani/customer-auth-service/tokens"
	"github.com/Krish-Depani/customer-auth-service/validators"
)

// Cache is the request-scoped identity cache.
type Cache interface {
	auth.Cache
	Put(user *models.User)
	Evict(id uint)
}

// Store persists customers.
type Store interface {
	Create(ctx context.Context, user *models.User) error
	Save(ctx context.Context, user *models.User) error
	Taken(ctx context.Context, websiteID, exceptID uint, email, phone string) (bool, error)
}

// Sessions issues and revokes customer tokens.
type Sessions interface {
	Issue(ctx context.Context, userID uint, meta tokens.Meta) (string, error)
	Revoke(ctx context.Context, userID uint) error
	ActiveSessions(ctx context.Context, userID uint) ([]models.UserSession, error)
}

// Links stores single-use magic link tokens.
type Links interface {
	SetMagicLink(ctx context.Context, token string, userID uint, ttl time.Duration) error
}

type Options struct {
	BaseURL             string
	RequireConfirmation bool
	PasswordMinLength   int
	ResetTokenTTL       time.Duration
	MagicLinkTTL        time.Duration
}

type AccountService struct {
	store    Store
	sessions Sessions
	links    Links
	throttle auth.Limiter
	events   events.Publisher
	logger   *zap.Logger
	opts     Options
	now      func() time.Time
}

func NewAccountService(store Store, sessions Sessions, links Links, limiter auth.Limiter, publisher events.Publisher, log *zap.Logger, opts Options) *AccountService {
	if opts.PasswordMinLength <= 0 {
		opts.PasswordMinLength = 8
	}
	return &AccountService{
		store:    store,
		sessions: sessions,
		links:    links,
		throttle: limiter,
		events:   publisher,
		logger:   logger.OrNop(log),
		opts:     opts,
		now:      time.Now,
	}
}

// RegisterResult holds either a token for an active account or the
// confirmation details for an account that must be confirmed first.
type RegisterResult struct {
	User                 *models.User
	Token                string
	ConfirmationRequired bool
	URL                  string
}

type RegisteredPayload struct {
	User            *models.User `json:"customer"`
	ConfirmationURL string       `json:"confirmation_url,omitempty"`
}

type ConfirmationPayload struct {
	CustomerID      uint   `json:"customer_id"`
	Email           string `json:"email"`
	ConfirmationURL string `json:"confirmation_url"`
}

// Register creates a customer on the website. Email and phone must be unique
// per website.
func (s *AccountService) Register(ctx context.Context, cache Cache, sess session.Context, req validators.RegisterRequest, websiteID uint, meta tokens.Meta) (*RegisterResult, error) {
	if err := validators.Check(req); err != nil {
		return nil, err
	}
	if err := s.checkPassword("password", req.Password); err != nil {
		return nil, err
	}

	taken, err := s.store.Taken(ctx, websiteID, 0, req.Email, req.Phone)
	if err != nil {
		return nil, s.internal("register", err)
	}
	if taken {
		return nil, alreadyExists()
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, s.internal("hash password", err)
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		WebsiteID:    websiteID,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Prefix:       req.Prefix,
		Suffix:       req.Suffix,
		Dob:          req.Dob,
		Gender:       req.Gender,
		Taxvat:       req.Taxvat,
		GroupID:      req.GroupID,
		Confirmation: models.ConfirmationNotRequired,
	}
	if user.GroupID == 0 {
		user.GroupID = 1
	}
	if req.Phone != "" {
		phone := req.Phone
		user.Phone = &phone
	}
	if s.opts.RequireConfirmation {
		user.Confirmation = models.ConfirmationPending
		user.ConfirmationKey = newToken()
	}

	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrUserExists) {
			return nil, alreadyExists()
		}
		return nil, s.internal("register", err)
	}
	cache.Put(user)

	if user.ConfirmationPending() {
		s.events.Publish(ctx, events.CustomerRegisterSuccess, RegisteredPayload{User: user, ConfirmationURL: s.confirmationURL(user)})
		return &RegisterResult{User: user, ConfirmationRequired: true, URL: s.ResendConfirmationURL(user.Email)}, nil
	}
	s.events.Publish(ctx, events.CustomerRegisterSuccess, RegisteredPayload{User: user})

	token, err := s.sessions.Issue(ctx, user.ID, meta)
	if err != nil {
		return nil, s.internal("issue token", err)
	}
	sess.MarkLoggedIn(user)
	return &RegisterResult{User: user, Token: token}, nil
}

// Confirm activates a pending account with the key sent by email and signs the customer in.
func (s *AccountService) Confirm(ctx context.Context, cache Cache, sess session.Context, q validators.ConfirmQuery, meta tokens.Meta) (*RegisterResult, error) {
	if err := validators.Check(q); err != nil {
		return nil, err
	}

	user, err := cache.GetByID(ctx, q.ID)
	if err != nil {
		return nil, s.domainOr("confirm", err)
	}
	if !user.ConfirmationPending() {
		return nil, apperr.Validation("The account is already active.")
	}
	if subtle.ConstantTimeCompare([]byte(user.ConfirmationKey), []byte(q.Key)) != 1 {
		return nil, apperr.BadCredentials("The confirmation token is invalid. Verify the token and try again.")
	}

	user.Confirmation = models.ConfirmationConfirmed
	user.ConfirmationKey = ""
	if err := s.store.Save(ctx, user); err != nil {
		cache.Evict(user.ID)
		return nil, s.internal("confirm", err)
	}
	cache.Put(user)
	s.events.Publish(ctx, events.CustomerConfirmed, RegisteredPayload{User: user})

	token, err := s.sessions.Issue(ctx, user.ID, meta)
	if err != nil {
		return nil, s.internal("issue token", err)
	}
	sess.MarkLoggedIn(user)
	return &RegisterResult{User: user, Token: token}, nil
}

// ResendConfirmation sends a new confirmation link. It succeeds for unknown
// and already active accounts so it cannot be used to enumerate customers.
func (s *AccountService) ResendConfirmation(ctx context.Context, cache Cache, req validators.ResendConfirmationRequest, websiteID uint) error {
	if err := validators.Check(req); err != nil {
		return err
	}

	user, err := cache.GetByEmail(ctx, req.Email, websiteID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil
	}
	if err != nil {
		return s.internal("resend confirmation", err)
	}
	if !user.ConfirmationPending() {
		return nil
	}

	user.ConfirmationKey = newToken()
	if err := s.store.Save(ctx, user); err != nil {
		cache.Evict(user.ID)
		return s.internal("resend confirmation", err)
	}
	s.events.Publish(ctx, events.CustomerConfirmationResend, ConfirmationPayload{
		CustomerID:      user.ID,
		Email:           user.Email,
		ConfirmationURL: s.confirmationURL(user),
	})
	return nil
}

// ResendConfirmationURL is where an unconfirmed customer can ask for a new confirmation email.
func (s *AccountService) ResendConfirmationURL(email string) string {
	return s.link("/customer/confirm/resend", url.Values{"email": {email}})
}

func (s *AccountService) confirmationURL(user *models.User) string {
	return s.link("/customer/confirm", url.Values{
		"id":  {fmt.Sprint(user.ID)},
		"key": {user.ConfirmationKey},
	})
}

func (s *AccountService) link(path string, query url.Values) string {
	return strings.TrimRight(s.opts.BaseURL, "/") + path + "?" + query.Encode()
}

// checkPassword enforces the minimum length and at least two character classes.
func (s *AccountService) checkPassword(field, password string) error {
	if len(password) < s.opts.PasswordMinLength {
		return apperr.ValidationFields([]apperr.FieldError{{
			Field:   field,
			Tag:     "min",
			Message: fmt.Sprintf("Must be at least %d characters long.", s.opts.PasswordMinLength),
		}})
	}

	var lower, upper, digit, other bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			other = true
		}
	}
	classes := 0
	for _, ok := range []bool{lower, upper, digit, other} {
		if ok {
			classes++
		}
	}
	if classes < 2 {
		return apperr.ValidationFields([]apperr.FieldError{{
			Field:   field,
			Tag:     "password",
			Message: "Use at least two of: lower case, upper case, digits, special characters.",
		}})
	}
	return nil
}

// domainOr passes domain errors through and wraps anything else as internal.
func (s *AccountService) domainOr(op string, err error) error {
	if apperr.IsDomain(err) {
		return err
	}
	return s.internal(op, err)
}

func (s *AccountService) internal(op string, err error) error {
	s.logger.Error("account operation failed", zap.String("op", op), zap.Error(err))
	return apperr.Internal("Something went wrong. Please try again later.", err)
}

func alreadyExists() error {
	return apperr.New(apperr.KindAlreadyExists, "A customer with the same email address or phone number already exists in an associated website.")
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// resetThrottle clears a counter on a context that outlives the request.
func (s *AccountService) resetThrottle(ctx context.Context, identifier string, userType throttle.UserType) {
	if err := s.throttle.ResetOnSuccess(context.WithoutCancel(ctx), identifier, userType); err != nil {
		s.logger.Warn("failed to reset throttle", zap.String("type", string(userType)), zap.Error(err))
	}
}
