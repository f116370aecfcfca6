package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/diagramlab/apiserver/internal/ratelimit"
	"github.com/diagramlab/apiserver/internal/services"
	"github.com/diagramlab/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const defaultTokenTTL = 24 * time.Hour

// signupMessage is returned on every signup-shaped success, including
// the honeypot fake-success, so the responses are indistinguishable.
const signupMessage = "account created"

// forgotMessage is returned on every forgot-password request regardless
// of whether the address exists or uses password auth.
const forgotMessage = "if an account exists for that address, a reset link has been sent"

// AuthHandler provides the authentication and password-lifecycle
// endpoints.
type AuthHandler struct {
	auth     *services.AuthService
	secret   []byte
	tokenTTL time.Duration
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(auth *services.AuthService, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		secret:   []byte(jwtSecret),
		tokenTTL: defaultTokenTTL,
	}
}

// AuthRouter registers auth routes on the given router. Signup and login
// sit behind the auth rate-limit namespace; the password-reset pair sits
// behind the stricter one.
func AuthRouter(r chi.Router, auth *services.AuthService, jwtSecret string, limiter *ratelimit.Limiter, authMW *AuthMiddleware) {
	handler := NewAuthHandler(auth, jwtSecret)

	authLimit := ratelimit.Middleware(limiter, ratelimit.NamespaceAuth)
	strictLimit := ratelimit.Middleware(limiter, ratelimit.NamespaceStrict)

	r.With(authLimit).Post("/signup", handler.Signup)
	r.With(authLimit).Post("/login", handler.Login)
	r.With(strictLimit).Post("/forgot-password", handler.ForgotPassword)
	r.With(strictLimit).Post("/reset-password", handler.ResetPassword)
	r.With(authMW.RequireAuthenticated).Post("/change-password", handler.ChangePassword)
}

type SignupRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	AcceptedTerms   bool   `json:"acceptedTerms"`
	AcceptedPrivacy bool   `json:"acceptedPrivacy"`

	// Website is a honeypot field the real form never fills in.
	Website string `json:"website"`
}

// Signup creates a new account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if strings.TrimSpace(req.Website) != "" {
		// Bot-filled honeypot: drop silently behind a fake success.
		writeJSON(w, http.StatusCreated, MessageResponse{Message: signupMessage})
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if !req.AcceptedTerms || !req.AcceptedPrivacy {
		writeError(w, http.StatusBadRequest, "terms and privacy policy must be accepted")
		return
	}

	_, err := h.auth.Signup(r.Context(), services.SignupParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		if policyErr, ok := asPasswordPolicyError(err); ok {
			writePasswordPolicyError(w, policyErr)
			return
		}
		if errors.Is(err, services.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: signupMessage})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, services.ErrExternalAccount):
			writeError(w, http.StatusUnauthorized, "account uses an external sign-in provider")
		default:
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
		}
		return
	}

	token, err := issueToken(user.ID, h.secret, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword issues a reset token when the address belongs to a
// credentials account. The response is the same either way.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	if err := h.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: forgotMessage})
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword consumes a reset token and stores the new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Token == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		if policyErr, ok := asPasswordPolicyError(err); ok {
			writePasswordPolicyError(w, policyErr)
			return
		}
		if errors.Is(err, services.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, "invalid or expired token")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword replaces the authenticated user's password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	if err := h.auth.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		if policyErr, ok := asPasswordPolicyError(err); ok {
			writePasswordPolicyError(w, policyErr)
			return
		}
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, "current password is incorrect")
		case errors.Is(err, services.ErrPasswordUnchanged):
			writeError(w, http.StatusBadRequest, "new password must differ from the current password")
		case errors.Is(err, services.ErrExternalAccount):
			writeError(w, http.StatusBadRequest, "account uses an external sign-in provider")
		default:
			writeError(w, http.StatusInternalServerError, "failed to change password")
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})
}
