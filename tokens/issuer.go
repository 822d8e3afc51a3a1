// Package tokens issues and revokes customer session tokens.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Krish-Depani/customer-auth-service/database"
	"github.com/Krish-Depani/customer-auth-service/logger"
	"github.com/Krish-Depani/customer-auth-service/models"
	"github.com/Krish-Depani/customer-auth-service/utils"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrRevoked      = errors.New("session revoked")
)

// Meta describes the client a token is issued to.
type Meta struct {
	IPAddress string
	UserAgent string
}

type Claims struct {
	UserID uint `json:"uid"`
	jwt.RegisteredClaims
}

type Issuer struct {
	db     *gorm.DB
	redis  *database.RedisClient
	secret []byte
	issuer string
	ttl    time.Duration

	// Locate resolves an IP address to a display location.
	Locate func(ctx context.Context, ip string) string
	Logger *zap.Logger
}

func NewIssuer(db *gorm.DB, redis *database.RedisClient, secret, issuer string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{
		db:     db,
		redis:  redis,
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		Locate: utils.GetIPLocation,
		Logger: zap.NewNop(),
	}
}

// Issue records a new session for the user and returns its signed token.
// The token is only returned once both the database row and the Redis entry exist.
func (i *Issuer) Issue(ctx context.Context, userID uint, meta Meta) (string, error) {
	if userID == 0 {
		return "", fmt.Errorf("issue token: user id is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sessionToken := uuid.NewString()
	now := time.Now()
	expiresAt := now.Add(i.ttl)

	signed, err := i.sign(userID, sessionToken, now, expiresAt)
	if err != nil {
		return "", err
	}

	session := models.UserSession{
		UserID:       userID,
		SessionToken: sessionToken,
		DeviceInfo:   meta.UserAgent,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Location:     i.locate(ctx, meta.IPAddress),
		LastActivity: now,
		ExpiresAt:    expiresAt,
		IsActive:     true,
	}

	err = i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&session).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		// Redis is written inside the transaction so a failure rolls the row back.
		return i.redis.SetSession(ctx, sessionToken, userID, i.ttl)
	})
	if err != nil {
		return "", err
	}

	return signed, nil
}

// Revoke ends every active session of the user.
func (i *Issuer) Revoke(ctx context.Context, userID uint) error {
	err := i.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"expires_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return i.redis.DeleteUserSessions(ctx, userID)
}

// Validate parses token and checks that its session is still active.
func (i *Issuer) Validate(ctx context.Context, token string) (*Claims, *models.UserSession, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, ErrExpiredToken
		}
		return nil, nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.UserID == 0 || claims.ID == "" {
		return nil, nil, ErrInvalidToken
	}

	userID, err := i.redis.GetSession(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, database.ErrSessionNotFound) {
			return nil, nil, ErrRevoked
		}
		return nil, nil, err
	}
	if userID != claims.UserID {
		return nil, nil, ErrInvalidToken
	}

	var session models.UserSession
	err = i.db.WithContext(ctx).
		Scopes(models.LiveSessions(time.Now())).
		Where("session_token = ?", claims.ID).
		First(&session).Error
	if err != nil {
		_ = i.redis.DeleteSession(ctx, claims.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrRevoked
		}
		return nil, nil, fmt.Errorf("load session: %w", err)
	}

	if err := i.db.WithContext(ctx).Model(&session).Update("last_activity", time.Now()).Error; err != nil {
		logger.OrNop(i.Logger).Warn("failed to touch session activity", zap.Uint("session_id", session.ID), zap.Error(err))
	}
	return claims, &session, nil
}

// ActiveSessions lists the user's live sessions, most recently used first.
func (i *Issuer) ActiveSessions(ctx context.Context, userID uint) ([]models.UserSession, error) {
	var sessions []models.UserSession
	err := i.db.WithContext(ctx).
		Scopes(models.LiveSessions(time.Now())).
		Where("user_id = ?", userID).
		Order("last_activity DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// MarkRememberMe flags the user's active sessions as remembered.
func (i *Issuer) MarkRememberMe(ctx context.Context, userID uint, remember bool) error {
	return i.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("remember_me", remember).Error
}

func (i *Issuer) sign(userID uint, sessionToken string, now, expiresAt time.Time) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionToken,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (i *Issuer) locate(ctx context.Context, ip string) string {
	if i.Locate == nil || ip == "" {
		return "Unknown"
	}
	return i.Locate(ctx, ip)
}
