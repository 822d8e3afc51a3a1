package validators

type LoginRequest struct {
	Strategy       string `json:"strategy"`
	Identifier     string `json:"identifier" validate:"omitempty,max=255"`
	Password       string `json:"password" validate:"omitempty,max=256"`
	AccessToken    string `json:"access_token" validate:"omitempty,max=4096"`
	MagicLinkToken string `json:"magic_link_token" validate:"omitempty,max=255"`
	RememberMe     bool   `json:"remember_me"`
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"omitempty,e164"`
	Password  string `json:"password" validate:"required,min=8,max=256"`
	FirstName string `json:"first_name" validate:"required,max=255"`
	LastName  string `json:"last_name" validate:"required,max=255"`
	Prefix    string `json:"prefix" validate:"omitempty,max=40"`
	Suffix    string `json:"suffix" validate:"omitempty,max=40"`
	Dob       string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Gender    string `json:"gender" validate:"omitempty,oneof=male female other"`
	Taxvat    string `json:"taxvat" validate:"omitempty,max=50"`
	GroupID   uint   `json:"group_id"`
}

// UpdateRequest is a partial profile update; empty fields are left unchanged.
type UpdateRequest struct {
	Email     string `json:"email" validate:"omitempty,email,max=255"`
	Phone     string `json:"phone" validate:"omitempty,e164"`
	FirstName string `json:"first_name" validate:"omitempty,max=255"`
	LastName  string `json:"last_name" validate:"omitempty,max=255"`
	Prefix    string `json:"prefix" validate:"omitempty,max=40"`
	Suffix    string `json:"suffix" validate:"omitempty,max=40"`
	Dob       string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Gender    string `json:"gender" validate:"omitempty,oneof=male female other"`
	Taxvat    string `json:"taxvat" validate:"omitempty,max=50"`
}

type LogoutRequest struct {
	IdentityID uint `json:"identity_id" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

type ResetPasswordRequest struct {
	IdentityID  uint   `json:"identity_id" validate:"required"`
	Token       string `json:"token" validate:"required,max=255"`
	NewPassword string `json:"new_password" validate:"required,max=256"`
}

type ResendConfirmationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type MagicLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type IdentifierQuery struct {
	Identifier string `form:"identifier" json:"identifier" validate:"required,identifier"`
}

type ConfirmQuery struct {
	ID  uint   `form:"id" json:"id" validate:"required"`
	Key string `form:"key" json:"key" validate:"required"`
}
