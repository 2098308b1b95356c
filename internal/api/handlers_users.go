package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/nocalert/core/internal/auth"
	"github.com/nocalert/core/internal/models"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.Users.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

type createUserRequest struct {
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if !models.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := s.store.Users.Create(r.Context(), u); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.auditAction(r, "user.create", u.Username)
	writeJSON(w, http.StatusCreated, u)
}

type updateUserRequest struct {
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
	IsActive *bool       `json:"is_active"`
	Password string      `json:"password"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.Users.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email != "" {
		existing.Email = req.Email
	}
	if req.Role != "" {
		if !models.ValidRole(req.Role) {
			writeError(w, http.StatusBadRequest, "invalid role")
			return
		}
		existing.Role = req.Role
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if err := s.store.Users.Update(r.Context(), existing); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to hash password")
			return
		}
		if err := s.store.Users.SetPasswordHash(r.Context(), existing.ID, hash); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update password")
			return
		}
	}
	s.auditAction(r, "user.update", existing.Username)
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.Users.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if existing.Username == "admin" {
		writeError(w, http.StatusBadRequest, "cannot delete the admin user")
		return
	}
	if err := s.store.Users.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	s.auditAction(r, "user.delete", existing.Username)
	w.WriteHeader(http.StatusNoContent)
}
