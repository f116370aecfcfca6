package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagramlab/apiserver/internal/services"
	"github.com/diagramlab/apiserver/internal/store"
	"github.com/diagramlab/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// AdminHandler provides the admin user-management endpoints.
type AdminHandler struct {
	users *services.UserService
}

func NewAdminHandler(users *services.UserService) *AdminHandler {
	return &AdminHandler{users: users}
}

// AdminRouter registers admin routes; every route requires an active
// admin session.
func AdminRouter(r chi.Router, users *services.UserService, authMW *AuthMiddleware) {
	handler := NewAdminHandler(users)

	r.Use(authMW.RequireAuthenticated, RequireAdmin)
	r.Get("/", handler.ListUsers)
	r.Post("/", handler.UserAction)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []types.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// AdminActionRequest is the action-dispatch payload for POST
// /admin/users. Action selects the operation; the other fields are
// interpreted per action.
type AdminActionRequest struct {
	Action   string `json:"action"`
	UserID   int    `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Status   string `json:"status"`
	Role     string `json:"role"`
}

func (h *AdminHandler) UserAction(w http.ResponseWriter, r *http.Request) {
	var req AdminActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	switch req.Action {
	case "create":
		if req.Email == "" || req.Name == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "missing required fields")
			return
		}
		user, err := h.users.Create(r.Context(), services.AdminCreateParams{
			Email:    req.Email,
			Name:     req.Name,
			Password: req.Password,
			Role:     req.Role,
			Status:   req.Status,
		})
		if err != nil {
			h.respondError(w, err, "failed to create user")
			return
		}
		writeJSON(w, http.StatusCreated, user)

	case "reset-password":
		if req.UserID < 1 || req.Password == "" {
			writeError(w, http.StatusBadRequest, "missing required fields")
			return
		}
		if err := h.users.ResetPassword(r.Context(), req.UserID, req.Password); err != nil {
			h.respondError(w, err, "failed to reset password")
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})

	case "status-change":
		if req.UserID < 1 || req.Status == "" {
			writeError(w, http.StatusBadRequest, "missing required fields")
			return
		}
		user, err := h.users.SetStatus(r.Context(), req.UserID, req.Status)
		if err != nil {
			h.respondError(w, err, "failed to change status")
			return
		}
		writeJSON(w, http.StatusOK, user)

	case "role-change":
		if req.UserID < 1 || req.Role == "" {
			writeError(w, http.StatusBadRequest, "missing required fields")
			return
		}
		user, err := h.users.SetRole(r.Context(), req.UserID, req.Role)
		if err != nil {
			h.respondError(w, err, "failed to change role")
			return
		}
		writeJSON(w, http.StatusOK, user)

	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, err error, fallback string) {
	if policyErr, ok := asPasswordPolicyError(err); ok {
		writePasswordPolicyError(w, policyErr)
		return
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, services.ErrInvalidStatusTransition):
		writeError(w, http.StatusBadRequest, "invalid status transition")
	case errors.Is(err, services.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, "invalid role")
	case errors.Is(err, services.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid status")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
