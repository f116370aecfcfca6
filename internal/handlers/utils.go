package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagramlab/apiserver/internal/services"
	"github.com/diagramlab/apiserver/types"
)

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is a simple error payload. PasswordErrors carries the
// full list of violated password rules on complexity failures.
type ErrorResponse struct {
	Error          string   `json:"error"`
	PasswordErrors []string `json:"passwordErrors,omitempty"`
}

// MessageResponse is a simple success payload.
type MessageResponse struct {
	Message string `json:"message"`
}

func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writePasswordPolicyError renders a 400 with every violated rule so the
// client can show all of them at once.
func writePasswordPolicyError(w http.ResponseWriter, policyErr *services.PasswordPolicyError) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:          "password does not meet requirements",
		PasswordErrors: policyErr.Violations,
	})
}

// asPasswordPolicyError unwraps a password policy failure, if any.
func asPasswordPolicyError(err error) (*services.PasswordPolicyError, bool) {
	var policyErr *services.PasswordPolicyError
	if errors.As(err, &policyErr) {
		return policyErr, true
	}
	return nil, false
}
