package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/logger"
	"github.com/Krish-Depani/customer-auth-service/middleware"
	"github.com/Krish-Depani/customer-auth-service/registry"
	"github.com/Krish-Depani/customer-auth-service/services"
	"github.com/Krish-Depani/customer-auth-service/validators"
)

type UserController struct {
	accounts *services.AccountService
	loader   registry.Loader
	logger   *zap.Logger
}

func NewUserController(accounts *services.AccountService, loader registry.Loader, log *zap.Logger) *UserController {
	return &UserController{
		accounts: accounts,
		loader:   loader,
		logger:   logger.OrNop(log),
	}
}

var errNotAuthenticated = apperr.New(apperr.KindUnauthorized, "User not found in context")

func (uc *UserController) GetCurrentUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		sendError(c, uc.logger, "Not authenticated", errNotAuthenticated)
		return
	}

	user, err := uc.accounts.Me(c.Request.Context(), middleware.Cache(c, uc.loader), userID)
	if err != nil {
		sendError(c, uc.logger, "Failed to fetch customer", err)
		return
	}

	sendResponse(c, http.StatusOK, "Customer details retrieved", gin.H{"customer": user}, nil)
}

func (uc *UserController) UpdateCurrentUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		sendError(c, uc.logger, "Not authenticated", errNotAuthenticated)
		return
	}

	var req validators.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, "Update failed")
		return
	}

	user, err := uc.accounts.Update(c.Request.Context(), middleware.Cache(c, uc.loader), userID, req)
	if err != nil {
		sendError(c, uc.logger, "Update failed", err)
		return
	}

	sendResponse(c, http.StatusOK, "Customer details updated", gin.H{"customer": user}, nil)
}

func (uc *UserController) GetActiveSessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		sendError(c, uc.logger, "Not authenticated", errNotAuthenticated)
		return
	}

	currentSessionID := c.GetUint(sessionIDKey)

	sessions, err := uc.accounts.ActiveSessions(c.Request.Context(), userID, currentSessionID)
	if err != nil {
		sendError(c, uc.logger, "Failed to fetch sessions", err)
		return
	}

	sendResponse(c, http.StatusOK, "Active sessions retrieved successfully", gin.H{
		"sessions":              sessions,
		"total_active_sessions": len(sessions),
	}, nil)
}
