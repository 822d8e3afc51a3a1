package models

import (
	"time"

	"gorm.io/gorm"
)

// UserSession is one issued customer token. SessionToken doubles as the JWT id.
type UserSession struct {
	ID           uint   `gorm:"primarykey"`
	UserID       uint   `gorm:"not null;index:idx_customer_sessions_live,priority:1"`
	SessionToken string `gorm:"unique;not null"`
	DeviceInfo   string
	IPAddress    string
	UserAgent    string
	Location     string
	RememberMe   bool `gorm:"default:false"`
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time `gorm:"index:idx_customer_sessions_live,priority:3"`
	IsActive     bool      `gorm:"default:true;index:idx_customer_sessions_live,priority:2"`
	User         User      `gorm:"foreignkey:UserID"`
}

func (UserSession) TableName() string {
	return "customer_sessions"
}

// LiveSessions limits a query to active sessions that have not expired at now.
func LiveSessions(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_active = ? AND expires_at > ?", true, now)
	}
}
