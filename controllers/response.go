package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Krish-Depani/customer-auth-service/apperr"
)

const (
	sessionCookie  = "session_token"
	websiteHeader  = "X-Website-ID"
	userIDKey      = "userID"
	sessionIDKey   = "sessionID"
	genericFailure = "Internal server error"
)

type AuthResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

type ErrorBody struct {
	Kind    apperr.Kind         `json:"kind"`
	Message string              `json:"message"`
	Fields  []apperr.FieldError `json:"fields,omitempty"`
}

// sendResponse writes the response envelope shared by every endpoint.
func sendResponse(c *gin.Context, status int, message string, data interface{}, err interface{}) {
	c.JSON(status, AuthResponse{
		Status:  status,
		Message: message,
		Data:    data,
		Error:   err,
	})
}

// sendError maps err to its HTTP status. Internal errors are logged with
// their cause and rendered with a generic message.
func sendError(c *gin.Context, log *zap.Logger, message string, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal {
		_ = c.Error(err)
		log.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
		sendResponse(c, http.StatusInternalServerError, message, nil, ErrorBody{Kind: apperr.KindInternal, Message: genericFailure})
		return
	}

	sendResponse(c, appErr.Kind.HTTPStatus(), message, nil, ErrorBody{
		Kind:    appErr.Kind,
		Message: appErr.Message,
		Fields:  appErr.Fields,
	})
}

// Health answers liveness checks in the common envelope.
func Health(c *gin.Context) {
	sendResponse(c, http.StatusOK, "Service is healthy", gin.H{"status": "ok"}, nil)
}

func invalidBody(c *gin.Context, message string) {
	sendResponse(c, http.StatusBadRequest, message, nil, ErrorBody{
		Kind:    apperr.KindValidation,
		Message: "The request body is invalid.",
	})
}

// websiteID reads the tenant from the X-Website-ID header, falling back to the default website.
func websiteID(c *gin.Context, fallback uint) uint {
	raw := c.GetHeader(websiteHeader)
	if raw == "" {
		return fallback
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return fallback
	}
	return uint(id)
}

func currentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}
