package handlers

import (
	"net/http"

	mw "github.com/diagnosis/buildhub/internal/http/middleware"
	"github.com/diagnosis/buildhub/internal/http/response"
	"github.com/diagnosis/buildhub/services/auth/internal/domain"
)

const (
	msgCheckEmail    = "If the details are valid, a verification code has been sent to your email."
	msgResetNeutral  = "If an account exists for this email, a password reset code has been sent."
	msgEmailVerified = "Email verified successfully"
)

// Register handles user registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.authService.Register(r.Context(), &req); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Message(w, http.StatusAccepted, msgCheckEmail)
}

// VerifyEmail handles email verification with a code
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := h.authService.VerifyEmail(r.Context(), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"message": msgEmailVerified,
		"user":    user.ToUserInfo(),
	})
}

// ResendVerification handles resending verification codes
func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req domain.EmailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.authService.ResendVerification(r.Context(), &req); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, msgCheckEmail)
}

// Login handles user authentication
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

// RefreshToken handles token refresh
func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req domain.RefreshTokenRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.authService.Refresh(r.Context(), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := mw.SessionFrom(r)
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	user, err := h.authService.Me(r.Context(), session)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"user": user.ToUserInfo()})
}

// ForgotPassword always answers the same way, whatever the email.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.EmailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.passwordService.RequestReset(r.Context(), &req); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, msgResetNeutral)
}

func (h *Handlers) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.passwordService.VerifyResetCode(r.Context(), &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.passwordService.ResetPassword(r.Context(), &req); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Password has been reset. You can now log in.")
}
