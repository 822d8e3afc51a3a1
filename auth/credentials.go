package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/models"
)

// Saver persists a modified customer.
type Saver interface {
	Save(ctx context.Context, user *models.User) error
}

// CredentialStore verifies passwords and tracks failed attempts on the
// account itself. After LockThreshold failures within LockDuration the
// account is locked for LockDuration.
type CredentialStore struct {
	saver         Saver
	lockThreshold int
	lockDuration  time.Duration
	now           func() time.Time
}

func NewCredentialStore(saver Saver, lockThreshold int, lockDuration time.Duration) *CredentialStore {
	return &CredentialStore{
		saver:         saver,
		lockThreshold: lockThreshold,
		lockDuration:  lockDuration,
		now:           time.Now,
	}
}

const lockedMessage = "The account is locked. Please wait and try again or contact support."

func (s *CredentialStore) Verify(ctx context.Context, cache Cache, identifier, password string, websiteID uint) (*models.User, error) {
	user, err := cache.GetByIdentifier(ctx, identifier, websiteID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, nil
		}
		return nil, err
	}

	now := s.now()
	if user.IsLockedAt(now) {
		return nil, apperr.BadCredentials(lockedMessage)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.recordFailure(user, now)
		if err := s.saver.Save(ctx, user); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if user.ConfirmationPending() {
		return nil, apperr.New(apperr.KindEmailUnconfirmed, "This account is not confirmed.")
	}

	if user.FailuresNum > 0 || user.FirstFailure != nil || user.LockExpires != nil {
		user.FailuresNum = 0
		user.FirstFailure = nil
		user.LockExpires = nil
		if err := s.saver.Save(ctx, user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

func (s *CredentialStore) recordFailure(user *models.User, now time.Time) {
	if user.FirstFailure == nil || now.Sub(*user.FirstFailure) > s.lockDuration {
		user.FailuresNum = 1
		user.FirstFailure = &now
		user.LockExpires = nil
		return
	}

	user.FailuresNum++
	if s.lockThreshold > 0 && user.FailuresNum >= s.lockThreshold {
		expires := now.Add(s.lockDuration)
		user.LockExpires = &expires
	}
}

// HashPassword returns the bcrypt hash stored for a new password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
