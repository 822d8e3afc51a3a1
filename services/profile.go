package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Krish-Depani/customer-auth-service/apperr"
	"github.com/Krish-Depani/customer-auth-service/database"
	"github.com/Krish-Depani/customer-auth-service/events"
	"github.com/Krish-Depani/customer-auth-service/models"
	"github.com/Krish-Depani/customer-auth-service/session"
	"github.com/Krish-Depani/customer-auth-service/utils"
	"github.com/Krish-Depani/customer-auth-service/validators"
)

type LogoutPayload struct {
	IdentityID uint `json:"identity_id"`
}

type ProfilePayload struct {
	User *models.User `json:"customer"`
}

// VerifyItem describes one contact channel of a customer.
type VerifyItem struct {
	Type        string `json:"type"`
	Value       string `json:"value"`
	MaskedValue string `json:"masked_value"`
}

type SessionView struct {
	ID             uint      `json:"id"`
	DeviceInfo     string    `json:"device_info"`
	IPAddress      string    `json:"ip_address"`
	Location       string    `json:"location"`
	RememberMe     bool      `json:"remember_me"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
	ExpiresAt      time.Time `json:"expires_at"`
	CurrentSession bool      `json:"current_session"`
}

// Logout revokes every token of the customer and ends the current session.
func (s *AccountService) Logout(ctx context.Context, sess session.Context, identityID uint) error {
	if identityID == 0 {
		return apperr.ValidationFields([]apperr.FieldError{{Field: "identity_id", Tag: "required", Message: "This field is required."}})
	}

	if err := s.sessions.Revoke(ctx, identityID); err != nil {
		return s.internal("logout", err)
	}
	sess.Logout()
	sess.SetLastIdentityID(identityID)

	s.events.Publish(ctx, events.CustomerLogout, LogoutPayload{IdentityID: identityID})
	return nil
}

// Verify lists the email and phone of the customer behind identifier.
func (s *AccountService) Verify(ctx context.Context, cache Cache, q validators.IdentifierQuery, websiteID uint) ([]VerifyItem, error) {
	if err := validators.Check(q); err != nil {
		return nil, err
	}

	user, err := cache.GetByIdentifier(ctx, q.Identifier, websiteID)
	if err != nil {
		return nil, s.domainOr("verify", err)
	}

	items := []VerifyItem{{Type: "email", Value: user.Email, MaskedValue: utils.MaskEmail(user.Email)}}
	if phone := user.PhoneNumber(); phone != "" {
		items = append(items, VerifyItem{Type: "phone", Value: phone, MaskedValue: utils.MaskPhone(phone)})
	}
	return items, nil
}

// Check reports whether a customer exists for identifier.
func (s *AccountService) Check(ctx context.Context, cache Cache, q validators.IdentifierQuery, websiteID uint) error {
	if err := validators.Check(q); err != nil {
		return err
	}
	if _, err := cache.GetByIdentifier(ctx, q.Identifier, websiteID); err != nil {
		return s.domainOr("check", err)
	}
	return nil
}

func (s *AccountService) Me(ctx context.Context, cache Cache, id uint) (*models.User, error) {
	user, err := cache.GetByID(ctx, id)
	if err != nil {
		return nil, s.domainOr("me", err)
	}
	return user, nil
}

// Update applies the non-empty fields of req to the customer profile.
func (s *AccountService) Update(ctx context.Context, cache Cache, id uint, req validators.UpdateRequest) (*models.User, error) {
	if err := validators.Check(req); err != nil {
		return nil, err
	}

	user, err := cache.GetByID(ctx, id)
	if err != nil {
		return nil, s.domainOr("update", err)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == user.Email {
		email = ""
	}
	phone := req.Phone
	if phone == user.PhoneNumber() {
		phone = ""
	}
	if email != "" || phone != "" {
		taken, err := s.store.Taken(ctx, user.WebsiteID, user.ID, email, phone)
		if err != nil {
			return nil, s.internal("update", err)
		}
		if taken {
			return nil, alreadyExists()
		}
	}

	cache.Evict(user.ID)
	if email != "" {
		user.Email = email
	}
	if phone != "" {
		user.Phone = &phone
	}
	setIf(&user.FirstName, req.FirstName)
	setIf(&user.LastName, req.LastName)
	setIf(&user.Prefix, req.Prefix)
	setIf(&user.Suffix, req.Suffix)
	setIf(&user.Dob, req.Dob)
	setIf(&user.Gender, req.Gender)
	setIf(&user.Taxvat, req.Taxvat)

	if err := s.store.Save(ctx, user); err != nil {
		if errors.Is(err, database.ErrUserExists) {
			return nil, alreadyExists()
		}
		return nil, s.internal("update", err)
	}
	cache.Put(user)

	s.events.Publish(ctx, events.CustomerProfileUpdated, ProfilePayload{User: user})
	return user, nil
}

// ActiveSessions lists the customer's live sessions and flags the current one.
func (s *AccountService) ActiveSessions(ctx context.Context, userID, currentSessionID uint) ([]SessionView, error) {
	sessions, err := s.sessions.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, s.internal("sessions", err)
	}

	views := make([]SessionView, 0, len(sessions))
	for _, row := range sessions {
		views = append(views, SessionView{
			ID:             row.ID,
			DeviceInfo:     row.DeviceInfo,
			IPAddress:      row.IPAddress,
			Location:       row.Location,
			RememberMe:     row.RememberMe,
			CreatedAt:      row.CreatedAt,
			LastActivity:   row.LastActivity,
			ExpiresAt:      row.ExpiresAt,
			CurrentSession: row.ID == currentSessionID,
		})
	}
	return views, nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
