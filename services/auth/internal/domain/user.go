package domain

import (
	"time"

	"github.com/diagnosis/buildhub/internal/utils"
)

const (
	StatusPending  = "pending"
	StatusVerified = "verified"
)

type User struct {
	ID                 int64     `json:"id"`
	Role               string    `json:"role"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	Name               string    `json:"name"`
	Phone              string    `json:"phone"`
	VerificationStatus string    `json:"verification_status"`
	ResetVersion       int       `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (u *User) IsVerified() bool {
	return u.VerificationStatus == StatusVerified
}

type UserInfo struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
}

// ToUserInfo converts User to UserInfo (without sensitive data)
func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Phone:      u.Phone,
		Role:       u.Role,
		IsVerified: u.IsVerified(),
	}
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Phone    string `json:"phone" validate:"omitempty,min=7,max=20"`
}

func (r *RegisterRequest) Normalize() {
	r.Name = utils.NormalizeName(r.Name)
	r.Email = utils.NormalizeEmail(r.Email)
	r.Phone = utils.NormalizePhone(r.Phone)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
}

// VerifyCodeRequest is the body of verify-email and verify-reset-code.
type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,numeric,max=10"`
}

func (r *VerifyCodeRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
	r.Code = utils.NormalizeString(r.Code)
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *EmailRequest) Normalize() {
	r.Email = utils.NormalizeEmail(r.Email)
}

type ResetPasswordRequest struct {
	ResetToken  string `json:"reset_token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type UpdateUserRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int64     `json:"expires_in"`
	User         *UserInfo `json:"user"`
}

type ResetTokenResponse struct {
	ResetToken string `json:"reset_token"`
	ExpiresIn  int64  `json:"expires_in"`
}
