// Package auth implements the multi-strategy customer login.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/database"
	"github.com/Krish-Depani/customer-auth-service/models"
	"github.com/Krish-Depani/customer-auth-service/tokens"
	"github.com/Krish-Depani/customer-auth-service/validators"
)

const (
	StrategyEmail     = "email"
	StrategyPhone     = "phone"
	StrategyGoogle    = "google"
	StrategyApple     = "apple"
	StrategyMagicLink = "magic_link"
)

// Cache is the request-scoped identity lookup the authenticators resolve through.
type Cache interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string, websiteID uint) (*models.User, error)
	GetByIdentifier(ctx context.Context, identifier string, websiteID uint) (*models.User, error)
}

// Attempt is one login request.
type Attempt struct {
	Strategy       string
	Identifier     string
	Password       string
	AccessToken    string
	MagicLinkToken string
	RememberMe     bool
	WebsiteID      uint
	Client         tokens.Meta
}

// Authenticator resolves the identity behind an attempt. A nil user with a
// nil error means the credentials did not match.
type Authenticator interface {
	Authenticate(ctx context.Context, cache Cache, a Attempt) (*models.User, error)
}

// Verifier checks a password for an identifier.
type Verifier interface {
	Verify(ctx context.Context, cache Cache, identifier, password string, websiteID uint) (*models.User, error)
}

type passwordAuthenticator struct {
	verifier Verifier
	accepts  func(string) bool
	message  string
}

// EmailAuthenticator logs in with an email address and password.
func EmailAuthenticator(v Verifier) Authenticator {
	return &passwordAuthenticator{verifier: v, accepts: validators.IsEmail, message: "The identifier must be a valid email address."}
}

// PhoneAuthenticator logs in with an E.164 phone number and password.
func PhoneAuthenticator(v Verifier) Authenticator {
	return &passwordAuthenticator{verifier: v, accepts: validators.IsPhone, message: "The identifier must be a valid phone number."}
}

func (p *passwordAuthenticator) Authenticate(ctx context.Context, cache Cache, a Attempt) (*models.User, error) {
	if !p.accepts(a.Identifier) {
		return nil, apperr.ValidationFields([]apperr.FieldError{{Field: "identifier", Tag: "format", Message: p.message}})
	}
	if a.Password == "" {
		return nil, apperr.ValidationFields([]apperr.FieldError{{Field: "password", Tag: "required", Message: "This field is required."}})
	}
	return p.verifier.Verify(ctx, cache, a.Identifier, a.Password, a.WebsiteID)
}

// ErrProviderNotConfigured is returned when a social login is attempted
// against a provider without client credentials.
var ErrProviderNotConfigured = errors.New("oauth provider is not configured")

// ProviderConfig holds the client settings of a social login provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	UserInfoURL  string
}

// NewStrategies builds the login strategy table. Every tag is registered
// regardless of configuration; a provider without credentials fails when used.
func NewStrategies(verifier Verifier, links LinkStore, google, apple ProviderConfig) map[string]Authenticator {
	return map[string]Authenticator{
		StrategyEmail:     EmailAuthenticator(verifier),
		StrategyPhone:     PhoneAuthenticator(verifier),
		StrategyGoogle:    NewOAuthAuthenticator(StrategyGoogle, google.ClientID, google.ClientSecret, google.UserInfoURL),
		StrategyApple:     NewOAuthAuthenticator(StrategyApple, apple.ClientID, apple.ClientSecret, apple.UserInfoURL),
		StrategyMagicLink: MagicLinkAuthenticator(links),
	}
}

// ProviderUser is the part of a provider's user-info response used for login.
type ProviderUser struct {
	Subject       string `json:"sub"`
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
}

// OAuthAuthenticator logs in with an access token issued by a social
// provider. The provider's verified email must belong to a customer.
type OAuthAuthenticator struct {
	Provider         string
	Config           *oauth2.Config
	UserInfoEndpoint string
}

func NewOAuthAuthenticator(provider, clientID, clientSecret, userInfoEndpoint string) *OAuthAuthenticator {
	return &OAuthAuthenticator{
		Provider:         provider,
		Config:           &oauth2.Config{ClientID: clientID, ClientSecret: clientSecret},
		UserInfoEndpoint: userInfoEndpoint,
	}
}

// Configured reports whether the provider has a client id and a user-info endpoint.
func (o *OAuthAuthenticator) Configured() bool {
	return o.Config != nil && o.Config.ClientID != "" && o.UserInfoEndpoint != ""
}

func (o *OAuthAuthenticator) Authenticate(ctx context.Context, cache Cache, a Attempt) (*models.User, error) {
	if a.AccessToken == "" {
		return nil, apperr.ValidationFields([]apperr.FieldError{{Field: "access_token", Tag: "required", Message: "This field is required."}})
	}
	if !o.Configured() {
		return nil, fmt.Errorf("%s: %w", o.Provider, ErrProviderNotConfigured)
	}

	info, err := o.FetchUserInfo(ctx, a.AccessToken)
	if err != nil {
		return nil, err
	}
	if info == nil || info.Email == "" || (info.EmailVerified != nil && !*info.EmailVerified) {
		return nil, nil
	}

	user, err := cache.GetByEmail(ctx, info.Email, a.WebsiteID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, nil
	}
	return user, err
}

// FetchUserInfo calls the provider's user-info endpoint with the access
// token. A rejected token yields a nil user and no error.
func (o *OAuthAuthenticator) FetchUserInfo(ctx context.Context, accessToken string) (*ProviderUser, error) {
	client := o.Config.Client(ctx, &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s user info request: %w", o.Provider, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s user info request: %w", o.Provider, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%s user info status: %s", o.Provider, resp.Status)
	}

	var info ProviderUser
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode %s user info: %w", o.Provider, err)
	}
	info.Email = strings.TrimSpace(info.Email)
	return &info, nil
}

// LinkStore consumes single-use magic link tokens.
type LinkStore interface {
	ConsumeMagicLink(ctx context.Context, token string) (uint, error)
}

type magicLinkAuthenticator struct {
	links LinkStore
}

// MagicLinkAuthenticator logs in with a token previously sent by email.
func MagicLinkAuthenticator(links LinkStore) Authenticator {
	return &magicLinkAuthenticator{links: links}
}

func (m *magicLinkAuthenticator) Authenticate(ctx context.Context, cache Cache, a Attempt) (*models.User, error) {
	if a.MagicLinkToken == "" {
		return nil, apperr.ValidationFields([]apperr.FieldError{{Field: "magic_link_token", Tag: "required", Message: "This field is required."}})
	}

	id, err := m.links.ConsumeMagicLink(ctx, a.MagicLinkToken)
	if errors.Is(err, database.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user, err := cache.GetByID(ctx, id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, nil
	}
	return user, err
}
