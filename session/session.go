// Package session holds per-request customer session state.
package session

import (
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/Krish-Depani/customer-auth-service/models"
)

const contextKey = "customer_session"

// Context is the session state the login pipeline and account actions write to.
type Context interface {
	SetLastAttemptedIdentifier(value string)
	LastAttemptedIdentifier() string
	MarkLoggedIn(user *models.User)
	IsLoggedIn() bool
	Logout()
	SetLastIdentityID(id uint)
}

// Session is the default in-memory Context for one request.
type Session struct {
	mu             sync.Mutex
	lastIdentifier string
	identifierSets int
	userID         uint
	lastIdentityID uint
}

func New() *Session {
	return &Session{}
}

func (s *Session) SetLastAttemptedIdentifier(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIdentifier = value
	s.identifierSets++
}

func (s *Session) LastAttemptedIdentifier() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIdentifier
}

// IdentifierWrites counts calls to SetLastAttemptedIdentifier.
func (s *Session) IdentifierWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identifierSets
}

func (s *Session) MarkLoggedIn(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = user.ID
}

func (s *Session) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID != 0
}

func (s *Session) UserID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = 0
}

func (s *Session) SetLastIdentityID(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIdentityID = id
}

func (s *Session) LastIdentityID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIdentityID
}

// FromGin returns the request's session, creating it on first use.
func FromGin(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if s, ok := v.(*Session); ok {
			return s
		}
	}
	s := New()
	c.Set(contextKey, s)
	return s
}
