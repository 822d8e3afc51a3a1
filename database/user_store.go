package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Krish-Depani/customer-auth-service/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// UserStore is the backing store for customer accounts.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) LoadByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *UserStore) LoadByEmail(ctx context.Context, email string, websiteID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? AND website_id = ?", strings.ToLower(email), websiteID).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *UserStore) LoadByPhone(ctx context.Context, phone string, websiteID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("phone = ? AND website_id = ?", phone, websiteID).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// Create inserts a new user, failing with ErrUserExists when the email or
// phone is already taken on the website.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(user.Email)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		q := tx.Model(&models.User{}).Where("website_id = ? AND email = ?", user.WebsiteID, user.Email)
		if user.Phone != nil {
			q = tx.Model(&models.User{}).Where("website_id = ? AND (email = ? OR phone = ?)", user.WebsiteID, user.Email, *user.Phone)
		}
		if err := q.Count(&count).Error; err != nil {
			return fmt.Errorf("check existing user: %w", err)
		}
		if count > 0 {
			return ErrUserExists
		}

		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUserExists
			}
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
}

// Save persists every column of an existing user.
func (s *UserStore) Save(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(user.Email)
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserExists
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the last successful login without touching other columns.
func (s *UserStore) UpdateLastLogin(ctx context.Context, id uint, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at).Error
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// Taken reports whether another user on the website already uses the email or phone.
func (s *UserStore) Taken(ctx context.Context, websiteID, exceptID uint, email, phone string) (bool, error) {
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("website_id = ? AND id <> ?", websiteID, exceptID)
	switch {
	case email != "" && phone != "":
		q = q.Where("email = ? OR phone = ?", strings.ToLower(email), phone)
	case email != "":
		q = q.Where("email = ?", strings.ToLower(email))
	case phone != "":
		q = q.Where("phone = ?", phone)
	default:
		return false, nil
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, fmt.Errorf("check taken: %w", err)
	}
	return count > 0, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("database error: %w", err)
}
