package models

import (
	"strconv"
	"strings"

	"github.com/asaskevich/govalidator"

	"authgate/pkg/domain"
	dErrors "authgate/pkg/domain-errors"
)

// MinPasswordLength is enforced on registration only; login defers to the
// backend.
const MinPasswordLength = 8

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *LoginRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}
	return nil
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

func (r *RegisterRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
}

func (r *RegisterRequest) Validate() error {
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if !govalidator.StringLength(r.Password, strconv.Itoa(MinPasswordLength), "256") {
		return dErrors.New(dErrors.CodeInvalidInput, "password must be at least "+strconv.Itoa(MinPasswordLength)+" characters")
	}
	if !govalidator.StringLength(r.Name, "0", "255") {
		return dErrors.New(dErrors.CodeInvalidInput, "name is too long")
	}
	return nil
}

// SessionRequest persists a session obtained directly from the backend. User
// is accepted from clients that send it but is never trusted: the stored
// profile always comes from the backend.
type SessionRequest struct {
	Token string              `json:"token"`
	User  *domain.UserProfile `json:"user,omitempty"`
}

func (r *SessionRequest) Validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "token is required")
	}
	return nil
}

type LogoutResponse struct {
	Status string `json:"status"`
}

func validateEmail(email string) error {
	if email == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}
	if !govalidator.StringLength(email, "3", "255") || !govalidator.IsEmail(email) {
		return dErrors.New(dErrors.CodeInvalidInput, "email must be a valid email address")
	}
	return nil
}
