package auth

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/events"
	"github.com/Krish-Depani/customer-auth-service/logger"
	"github.com/Krish-Depani/customer-auth-service/models"
	"github.com/Krish-Depani/customer-auth-service/session"
	"github.com/Krish-Depani/customer-auth-service/throttle"
	"github.com/Krish-Depani/customer-auth-service/tokens"
	"github.com/Krish-Depani/customer-auth-service/utils"
)

type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeEmailUnconfirmed Outcome = "email_unconfirmed"
)

// Result is the outcome of a login that did not fail.
type Result struct {
	Outcome   Outcome
	User      *models.User
	Token     string
	ResendURL string
	Message   string
}

// TokenIssuer issues a session token once the identity has been validated.
type TokenIssuer interface {
	Issue(ctx context.Context, userID uint, meta tokens.Meta) (string, error)
}

// Limiter is the login throttle.
type Limiter interface {
	Throttle(ctx context.Context, identifier string, userType throttle.UserType) error
	ResetOnSuccess(ctx context.Context, identifier string, userType throttle.UserType) error
	ResetOnError(ctx context.Context, identifier string, userType throttle.UserType) error
}

// Rememberer stores the remember-me preference after a successful login.
type Rememberer interface {
	Remember(ctx context.Context, userID uint, remember bool) error
}

// AttemptPayload is published before authentication. It never carries secrets.
type AttemptPayload struct {
	Strategy   string `json:"strategy"`
	Identifier string `json:"identifier"`
	WebsiteID  uint   `json:"website_id"`
}

// ResultPayload is published after the authenticator ran, including when it
// did not resolve an identity.
type ResultPayload struct {
	Strategy      string `json:"strategy"`
	Identifier    string `json:"identifier"`
	WebsiteID     uint   `json:"website_id"`
	IdentityID    uint   `json:"identity_id,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

// AuthenticatedPayload is published once a token has been issued.
type AuthenticatedPayload struct {
	User     *models.User `json:"customer"`
	Strategy string       `json:"strategy"`
}

type PipelineConfig struct {
	Strategies map[string]Authenticator
	Throttle   Limiter
	Tokens     TokenIssuer
	Events     events.Publisher
	Remember   Rememberer
	Logger     *zap.Logger
	// ConfirmationURL is where a customer with an unconfirmed account can
	// request a new confirmation email.
	ConfirmationURL string
}

// Pipeline runs a login attempt through throttling, strategy dispatch,
// validation and token issuance.
type Pipeline struct {
	strategies      map[string]Authenticator
	throttle        Limiter
	tokens          TokenIssuer
	events          events.Publisher
	remember        Rememberer
	logger          *zap.Logger
	confirmationURL string

	wg sync.WaitGroup
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		strategies:      cfg.Strategies,
		throttle:        cfg.Throttle,
		tokens:          cfg.Tokens,
		events:          cfg.Events,
		remember:        cfg.Remember,
		logger:          logger.OrNop(cfg.Logger),
		confirmationURL: cfg.ConfirmationURL,
	}
}

// Strategies lists the registered strategy tags.
func (p *Pipeline) Strategies() []string {
	names := make([]string, 0, len(p.strategies))
	for name := range p.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the authenticator registered for the exact strategy tag.
func (p *Pipeline) Resolve(strategy string) (Authenticator, error) {
	authenticator, ok := p.strategies[strategy]
	if !ok {
		return nil, apperr.New(apperr.KindUnsupportedStrategy, "Unsupported login strategy %q.", strategy)
	}
	return authenticator, nil
}

// Login authenticates a. It returns a Result for a successful login or an
// unconfirmed account and an *apperr.Error otherwise. The attempted
// identifier is recorded on sess on every path.
func (p *Pipeline) Login(ctx context.Context, cache Cache, sess session.Context, a Attempt) (*Result, error) {
	defer sess.SetLastAttemptedIdentifier(a.Identifier)

	p.events.Publish(ctx, events.CustomerAuthenticationBefore, AttemptPayload{
		Strategy:   a.Strategy,
		Identifier: a.Identifier,
		WebsiteID:  a.WebsiteID,
	})

	// An unknown tag must not count against the identifier.
	authenticator, err := p.Resolve(a.Strategy)
	if err != nil {
		return nil, err
	}

	if a.Identifier != "" {
		if err := p.throttle.Throttle(ctx, a.Identifier, throttle.UserTypeCustomer); err != nil {
			if apperr.KindOf(err) == apperr.KindThrottled {
				return nil, err
			}
			return nil, p.internal(a, err)
		}
	}

	user, err := authenticator.Authenticate(ctx, cache, a)
	if apperr.KindOf(err) == apperr.KindNotFound {
		user, err = nil, nil
	}
	if err != nil {
		return p.fail(ctx, a, err)
	}

	result := ResultPayload{Strategy: a.Strategy, Identifier: a.Identifier, WebsiteID: a.WebsiteID}
	if user != nil {
		result.IdentityID = user.ID
		result.Authenticated = true
	}
	p.events.Publish(ctx, events.CustomerAuthenticationAfter, result)

	if err := validate(user, a.WebsiteID, time.Now()); err != nil {
		if apperr.KindOf(err) == apperr.KindEmailUnconfirmed {
			return p.unconfirmed(ctx, a, user.Email), nil
		}
		return p.fail(ctx, a, err)
	}

	token, err := p.tokens.Issue(ctx, user.ID, a.Client)
	if err != nil {
		return p.fail(ctx, a, err)
	}

	sess.MarkLoggedIn(user)
	p.events.Publish(ctx, events.CustomerAuthenticated, AuthenticatedPayload{User: user, Strategy: a.Strategy})
	p.scheduleRememberMe(ctx, user.ID, a.RememberMe)
	p.reset(ctx, a, true)

	return &Result{Outcome: OutcomeSuccess, User: user, Token: token}, nil
}

// Wait blocks until every scheduled remember-me task has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// validate applies the account checks every strategy shares. Password
// strategies hit the lock and confirmation checks earlier in CredentialStore.
func validate(user *models.User, websiteID uint, now time.Time) error {
	switch {
	case user == nil:
		return apperr.BadCredentials("Invalid login or password.")
	case user.WebsiteID != websiteID:
		return apperr.New(apperr.KindWrongTenant, "This account is not available on this website.")
	case user.IsLockedAt(now):
		return apperr.BadCredentials(lockedMessage)
	case user.ConfirmationPending():
		return apperr.New(apperr.KindEmailUnconfirmed, "This account is not confirmed.")
	case user.HasPendingReset():
		return apperr.New(apperr.KindResetPending, "A password reset was requested for this account. Please reset your password before signing in.")
	}
	return nil
}

// fail applies the throttle policy for err and converts it to the returned
// outcome. Bad credentials keep counting towards the throttle; every other
// failure clears it.
func (p *Pipeline) fail(ctx context.Context, a Attempt, err error) (*Result, error) {
	switch kind := apperr.KindOf(err); {
	case kind == apperr.KindEmailUnconfirmed:
		return p.unconfirmed(ctx, a, a.Identifier), nil
	case kind == apperr.KindBadCredentials:
		return nil, err
	case apperr.IsDomain(err):
		p.reset(ctx, a, false)
		return nil, err
	default:
		p.reset(ctx, a, false)
		return nil, p.internal(a, err)
	}
}

// unconfirmed builds the action-required result pointing at the resend
// confirmation endpoint for email.
func (p *Pipeline) unconfirmed(ctx context.Context, a Attempt, email string) *Result {
	p.reset(ctx, a, false)
	return &Result{
		Outcome:   OutcomeEmailUnconfirmed,
		ResendURL: p.resendURL(email),
		Message:   "This account is not confirmed. Use the confirmation link to resend the email.",
	}
}

func (p *Pipeline) internal(a Attempt, err error) error {
	p.logger.Error("login failed",
		zap.String("strategy", a.Strategy),
		zap.String("identifier", utils.MaskIdentifier(a.Identifier)),
		zap.Error(err),
	)
	return apperr.Internal("Something went wrong while signing in. Please try again later.", err)
}

// reset clears the throttle counter on a context that outlives the request.
func (p *Pipeline) reset(ctx context.Context, a Attempt, success bool) {
	if a.Identifier == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)

	var err error
	if success {
		err = p.throttle.ResetOnSuccess(ctx, a.Identifier, throttle.UserTypeCustomer)
	} else {
		err = p.throttle.ResetOnError(ctx, a.Identifier, throttle.UserTypeCustomer)
	}
	if err != nil {
		p.logger.Warn("failed to reset login throttle", zap.String("identifier", utils.MaskIdentifier(a.Identifier)), zap.Error(err))
	}
}

func (p *Pipeline) scheduleRememberMe(ctx context.Context, userID uint, remember bool) {
	if p.remember == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.remember.Remember(ctx, userID, remember); err != nil {
			p.logger.Warn("failed to store remember-me preference", zap.Uint("user_id", userID), zap.Error(err))
		}
	}()
}

func (p *Pipeline) resendURL(identifier string) string {
	if p.confirmationURL == "" {
		return ""
	}
	return p.confirmationURL + "?email=" + url.QueryEscape(identifier)
}
