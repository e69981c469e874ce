package handlers

import (
	"net/http"

	mw "github.com/diagnosis/buildhub/internal/http/middleware"
	"github.com/diagnosis/buildhub/internal/http/response"
	"github.com/diagnosis/buildhub/services/auth/internal/domain"
)

// ListUsers handles listing all users (admin only)
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	users, err := h.authService.ListUsers(r.Context(), limit, offset)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	userInfos := make([]*domain.UserInfo, len(users))
	for i := range users {
		userInfos[i] = users[i].ToUserInfo()
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"users":  userInfos,
		"limit":  limit,
		"offset": offset,
	})
}

// GetUser handles getting a specific user (admin only)
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	user, err := h.authService.GetUser(r.Context(), id)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, user.ToUserInfo())
}

// UpdateUserRole handles updating user roles (admin only)
func (h *Handlers) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req domain.UpdateUserRoleRequest
	if !decode(w, r, &req) {
		return
	}
	session, _ := mw.SessionFrom(r)

	user, err := h.authService.UpdateUserRole(r.Context(), session, id, &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, user.ToUserInfo())
}

// DeleteUser handles deleting a user (admin only)
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	session, _ := mw.SessionFrom(r)

	if err := h.authService.DeleteUser(r.Context(), session, id); err != nil {
		response.FromError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
