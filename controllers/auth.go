package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/auth"
	"github.com/Krish-Depani/customer-auth-service/logger"
	"github.com/Krish-Depani/customer-auth-service/middleware"
	"github.com/Krish-Depani/customer-auth-service/models"
	"github.com/Krish-Depani/customer-auth-service/registry"
	"github.com/Krish-Depani/customer-auth-service/services"
	"github.com/Krish-Depani/customer-auth-service/session"
	"github.com/Krish-Depani/customer-auth-service/tokens"
	"github.com/Krish-Depani/customer-auth-service/validators"
)

type AuthController struct {
	pipeline   *auth.Pipeline
	accounts   *services.AccountService
	issuer     *tokens.Issuer
	loader     registry.Loader
	metrics    *middleware.LoginMetrics
	logger     *zap.Logger
	websiteID  uint
	sessionTTL time.Duration
}

type AuthControllerConfig struct {
	Pipeline         *auth.Pipeline
	Accounts         *services.AccountService
	Issuer           *tokens.Issuer
	Loader           registry.Loader
	Metrics          *middleware.LoginMetrics
	Logger           *zap.Logger
	DefaultWebsiteID uint
	SessionTTL       time.Duration
}

func NewAuthController(cfg AuthControllerConfig) *AuthController {
	if cfg.DefaultWebsiteID == 0 {
		cfg.DefaultWebsiteID = 1
	}
	return &AuthController{
		pipeline:   cfg.Pipeline,
		accounts:   cfg.Accounts,
		issuer:     cfg.Issuer,
		loader:     cfg.Loader,
		metrics:    cfg.Metrics,
		logger:     logger.OrNop(cfg.Logger),
		websiteID:  cfg.DefaultWebsiteID,
		sessionTTL: cfg.SessionTTL,
	}
}

type tokenData struct {
	Token    string       `json:"token"`
	Customer *models.User `json:"customer"`
}

// Login handles customer authentication for every strategy
func (ac *AuthController) Login(c *gin.Context) {
	var req validators.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, "Login failed")
		return
	}
	if req.Strategy == "" {
		req.Strategy = auth.StrategyEmail
	}
	if err := validators.Check(req); err != nil {
		ac.metrics.Observe(strategyLabel(req.Strategy, err), string(apperr.KindValidation))
		sendError(c, ac.logger, "Login failed", err)
		return
	}

	res, err := ac.pipeline.Login(c.Request.Context(), ac.cache(c), session.FromGin(c), auth.Attempt{
		Strategy:       req.Strategy,
		Identifier:     strings.TrimSpace(req.Identifier),
		Password:       req.Password,
		AccessToken:    req.AccessToken,
		MagicLinkToken: req.MagicLinkToken,
		RememberMe:     req.RememberMe,
		WebsiteID:      websiteID(c, ac.websiteID),
		Client:         ac.clientMeta(c),
	})
	if err != nil {
		ac.metrics.Observe(strategyLabel(req.Strategy, err), string(apperr.KindOf(err)))
		sendError(c, ac.logger, "Login failed", err)
		return
	}
	ac.metrics.Observe(req.Strategy, string(res.Outcome))

	if res.Outcome == auth.OutcomeEmailUnconfirmed {
		sendResponse(c, http.StatusOK, res.Message, map[string]interface{}{
			"confirmation_required": true,
			"url":                   res.ResendURL,
		}, nil)
		return
	}

	ac.setSessionCookie(c, res.Token)
	sendResponse(c, http.StatusOK, "Login successful", tokenData{Token: res.Token, Customer: res.User}, nil)
}

// Logout ends every session of the authenticated customer
func (ac *AuthController) Logout(c *gin.Context) {
	var req validators.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, "Logout failed")
		return
	}
	if err := validators.Check(req); err != nil {
		sendError(c, ac.logger, "Logout failed", err)
		return
	}

	userID, _ := currentUserID(c)
	if req.IdentityID != userID {
		sendError(c, ac.logger, "Logout failed", apperr.New(apperr.KindUnauthorized, "You can only log out your own account."))
		return
	}

	if err := ac.accounts.Logout(c.Request.Context(), session.FromGin(c), req.IdentityID); err != nil {
		sendError(c, ac.logger, "Logout failed", err)
		return
	}

	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	sendResponse(c, http.StatusOK, "Logged out successfully", gin.H{"ok": true}, nil)
}

// Register handles customer registration
func (ac *AuthController) Register(c *gin.Context) {
	var req validators.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, "Registration failed")
		return
	}

	res, err := ac.accounts.Register(c.Request.Context(), ac.cache(c), session.FromGin(c), req, websiteID(c, ac.websiteID), ac.clientMeta(c))
	if err != nil {
		sendError(c, ac.logger, "Registration failed", err)
		return
	}

	if res.ConfirmationRequired {
		sendResponse(c, http.StatusCreated, "You must confirm your account. Please check your email for the confirmation link.", map[string]interface{}{
			"confirmation_required": true,
			"url":                   res.URL,
		}, nil)
		return
	}

	ac.setSessionCookie(c, res.Token)
	sendResponse(c, http.StatusCreated, "Customer registered successfully", tokenData{Token: res.Token, Customer: res.User}, nil)
}

// Confirm activates an account from the emailed confirmation link
func (ac *AuthController) Confirm(c *gin.Context) {
	var q validators.ConfirmQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalidBody(c, "Confirmation failed")
		return
	}

	res, err := ac.accounts.Confirm(c.Request.Context(), ac.cache(c), session.FromGin(c), q, ac.clientMeta(c))
	if err != nil {
		sendError(c, ac.logger, "Confirmation failed", err)
		return
	}

	ac.setSessionCookie(c, res.Token)
	sendResponse(c, http.StatusOK, "Thank you for confirming your account", tokenData{Token: res.Token, Customer: res.User}, nil)
}

func (ac *AuthController) ResendConfirmation(c *gin.Context) {
	var req validators.ResendConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, "Request failed")
		return
	}

	if err := ac.accounts.ResendConfirmation(c.Request.Context(), ac.cache(c), req, websiteID(c, ac.websiteID)); err != nil {
		sendError(c, ac.logger, "Request failed", err)
		return
	}
	sendResponse(c, http.StatusOK, "If the account exists and is not confirmed, a confirmation email has been sent", gin.H{"ok": true}, nil)
}

func (ac *AuthController) ForgotPassword(c *gin.Context) {
	var req validators.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, "Request failed")
		return
	}

	if err := ac.accounts.ForgotPassword(c.Request.Context(), ac.cache(c), req, websiteID(c, ac.websiteID)); err != nil {
		sendError(c, ac.logger, "Request failed", err)
		return
	}
	sendResponse(c, http.StatusOK, "If there is an account associated with this email you will receive a password reset link", gin.H{"ok": true}, nil)
}

func (ac *AuthController) ResetPassword(c *gin.Context) {
	var req validators.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, "Password reset failed")
		return
	}

	if err := ac.accounts.ResetPassword(c.Request.Context(), ac.cache(c), session.FromGin(c), req); err != nil {
		sendError(c, ac.logger, "Password reset failed", err)
		return
	}

	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	sendResponse(c, http.StatusOK, "Your password has been updated", gin.H{"ok": true}, nil)
}

func (ac *AuthController) MagicLink(c *gin.Context) {
	var req validators.MagicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, "Request failed")
		return
	}

	if err := ac.accounts.RequestMagicLink(c.Request.Context(), ac.cache(c), req, websiteID(c, ac.websiteID)); err != nil {
		sendError(c, ac.logger, "Request failed", err)
		return
	}
	sendResponse(c, http.StatusOK, "If there is an account associated with this email you will receive a login link", gin.H{"ok": true}, nil)
}

// Verify lists the masked contact channels of the customer behind an identifier
func (ac *AuthController) Verify(c *gin.Context) {
	var q validators.IdentifierQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalidBody(c, "Verification failed")
		return
	}

	items, err := ac.accounts.Verify(c.Request.Context(), ac.cache(c), q, websiteID(c, ac.websiteID))
	if err != nil {
		sendError(c, ac.logger, "Verification failed", err)
		return
	}
	sendResponse(c, http.StatusOK, "Customer found", items, nil)
}

func (ac *AuthController) Check(c *gin.Context) {
	var q validators.IdentifierQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalidBody(c, "Check failed")
		return
	}

	if err := ac.accounts.Check(c.Request.Context(), ac.cache(c), q, websiteID(c, ac.websiteID)); err != nil {
		sendError(c, ac.logger, "Check failed", err)
		return
	}
	sendResponse(c, http.StatusOK, "Customer exists", gin.H{"ok": true}, nil)
}

// AuthMiddleware handles authentication for protected routes
func (ac *AuthController) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, AuthResponse{
				Status:  http.StatusUnauthorized,
				Message: "Authentication required",
				Error:   ErrorBody{Kind: apperr.KindUnauthorized, Message: "No session found"},
			})
			return
		}

		claims, userSession, err := ac.issuer.Validate(c.Request.Context(), token)
		if err != nil {
			message := "Invalid or expired session"
			if !errors.Is(err, tokens.ErrInvalidToken) && !errors.Is(err, tokens.ErrExpiredToken) && !errors.Is(err, tokens.ErrRevoked) {
				ac.logger.Error("session validation failed", zap.Error(err))
				message = genericFailure
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, AuthResponse{
				Status:  http.StatusUnauthorized,
				Message: "Authentication failed",
				Error:   ErrorBody{Kind: apperr.KindUnauthorized, Message: message},
			})
			return
		}

		session.FromGin(c).MarkLoggedIn(&models.User{ID: claims.UserID})
		c.Set(userIDKey, claims.UserID)
		c.Set(sessionIDKey, userSession.ID)

		c.Next()
	}
}

func (ac *AuthController) cache(c *gin.Context) *registry.Registry {
	return middleware.Cache(c, ac.loader)
}

func (ac *AuthController) clientMeta(c *gin.Context) tokens.Meta {
	return tokens.Meta{IPAddress: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

func (ac *AuthController) setSessionCookie(c *gin.Context, token string) {
	ttl := ac.sessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c.SetCookie(sessionCookie, token, int(ttl.Seconds()), "/", "", false, true)
}

// bearerToken reads the token from the Authorization header or the session cookie.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	token, err := c.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return token
}

// strategyLabel keeps the metric label set bounded to known strategies.
func strategyLabel(strategy string, err error) string {
	switch strategy {
	case auth.StrategyEmail, auth.StrategyPhone, auth.StrategyGoogle, auth.StrategyApple, auth.StrategyMagicLink:
		return strategy
	}
	if apperr.KindOf(err) == apperr.KindUnsupportedStrategy {
		return "unsupported"
	}
	return "unknown"
}
