package models

import (
	"time"
)

type ConfirmationStatus string

const (
	ConfirmationConfirmed   ConfirmationStatus = "confirmed"
	ConfirmationPending     ConfirmationStatus = "pending"
	ConfirmationNotRequired ConfirmationStatus = "not_required"
)

// User is a customer account. Email is unique per website; phone is unique
// per website when set.
type User struct {
	ID               uint               `gorm:"primarykey" json:"id"`
	Email            string             `gorm:"not null;uniqueIndex:idx_users_email_website" json:"email"`
	Phone            *string            `gorm:"uniqueIndex:idx_users_phone_website" json:"phone,omitempty"`
	WebsiteID        uint               `gorm:"not null;uniqueIndex:idx_users_email_website;uniqueIndex:idx_users_phone_website" json:"website_id"`
	PasswordHash     string             `gorm:"not null" json:"-"`
	FirstName        string             `json:"first_name"`
	LastName         string             `json:"last_name"`
	Prefix           string             `json:"prefix,omitempty"`
	Suffix           string             `json:"suffix,omitempty"`
	Dob              string             `json:"dob,omitempty"`
	Gender           string             `json:"gender,omitempty"`
	Taxvat           string             `json:"taxvat,omitempty"`
	GroupID          uint               `gorm:"default:1" json:"group_id"`
	Confirmation     ConfirmationStatus `gorm:"default:not_required" json:"confirmation"`
	ConfirmationKey  string             `json:"-"`
	RpToken          string             `json:"-"`
	RpTokenCreatedAt *time.Time         `json:"-"`
	FailuresNum      int                `gorm:"default:0" json:"-"`
	FirstFailure     *time.Time         `json:"-"`
	LockExpires      *time.Time         `json:"-"`
	LastLogin        *time.Time         `json:"last_login,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// IsLocked reports whether the lock expiry lies in the future.
func (u *User) IsLocked() bool {
	return u.IsLockedAt(time.Now())
}

func (u *User) IsLockedAt(now time.Time) bool {
	return u.LockExpires != nil && u.LockExpires.After(now)
}

func (u *User) PhoneNumber() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}

// HasPendingReset reports whether a password reset was requested and not completed.
func (u *User) HasPendingReset() bool {
	return u.RpTokenCreatedAt != nil
}

func (u *User) ConfirmationPending() bool {
	return u.Confirmation == ConfirmationPending
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
