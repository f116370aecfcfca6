package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/diagramlab/apiserver/internal/notify"
	"github.com/diagramlab/apiserver/internal/password"
	"github.com/diagramlab/apiserver/internal/ratelimit"
	"github.com/diagramlab/apiserver/internal/services"
	"github.com/diagramlab/apiserver/internal/testutil"
	"github.com/diagramlab/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "test-secret"
	testPassword = "Str0ng!pass"
)

type testEnv struct {
	router   *chi.Mux
	users    *testutil.UserRepo
	diagrams *testutil.DiagramRepo
	limiter  *ratelimit.Limiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := testutil.NewUserRepo()
	diagrams := testutil.NewDiagramRepo()

	limiter := ratelimit.New(ratelimit.NewMemoryStore())
	t.Cleanup(func() { limiter.Close() })

	authService := services.NewAuthService(users, notify.LogNotifier{}, "admin@example.com", "https://app.example.com")
	userService := services.NewUserService(users)
	diagramService := services.NewDiagramService(diagrams)
	authMW := NewAuthMiddleware(authService, testSecret)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authService, testSecret, limiter, authMW)
	})
	router.Route("/diagrams", func(r chi.Router) {
		DiagramRouter(r, diagramService, limiter, authMW)
	})
	router.Route("/admin/users", func(r chi.Router) {
		AdminRouter(r, userService, authMW)
	})

	return &testEnv{router: router, users: users, diagrams: diagrams, limiter: limiter}
}

// seedUser inserts an account and returns it with a valid session token.
func (e *testEnv) seedUser(t *testing.T, email, role, status string) (types.User, string) {
	t.Helper()
	hash, err := password.Hash(testPassword)
	require.NoError(t, err)
	user := e.users.Seed(types.User{
		Email:        email,
		Name:         "Test User",
		PasswordHash: &hash,
		Provider:     types.ProviderEmail,
		Role:         role,
		Status:       status,
	})
	token, err := issueToken(user.ID, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return user, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:40000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestSignupCreatesPendingAccount(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"email":           "alice@example.com",
		"name":            "Alice",
		"password":        testPassword,
		"acceptedTerms":   true,
		"acceptedPrivacy": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "account created", decodeBody[MessageResponse](t, rec).Message)

	user, err := env.users.GetByEmail(t.Context(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, user.Status)
}

func TestSignupHoneypotFakesSuccess(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"email":           "bot@example.com",
		"name":            "Bot",
		"password":        testPassword,
		"acceptedTerms":   true,
		"acceptedPrivacy": true,
		"website":         "https://spam.example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "account created", decodeBody[MessageResponse](t, rec).Message)

	_, err := env.users.GetByEmail(t.Context(), "bot@example.com")
	assert.Error(t, err, "honeypot submissions never create an account")
}

func TestSignupRequiresTermsAndPrivacy(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"email":           "alice@example.com",
		"name":            "Alice",
		"password":        testPassword,
		"acceptedTerms":   true,
		"acceptedPrivacy": false,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignupReturnsAllPasswordViolations(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/signup", "", map[string]any{
		"email":           "alice@example.com",
		"name":            "Alice",
		"password":        "abc",
		"acceptedTerms":   true,
		"acceptedPrivacy": true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Len(t, body.PasswordErrors, 4)
}

func TestLoginReturnsUsableToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[AuthResponse](t, rec)
	require.NotEmpty(t, body.Token)
	assert.Equal(t, "alice@example.com", body.User.Email)

	listRec := env.do(t, http.MethodGet, "/diagrams/", body.Token, nil)
	assert.Equal(t, http.StatusOK, listRec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	rec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "Wr0ng!pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": testPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthEndpointsRateLimited(t *testing.T) {
	env := newTestEnv(t)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		rec = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
			"email":    "alice@example.com",
			"password": "Wr0ng!pass",
		})
	}
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/diagrams/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/diagrams/", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionForDeletedUserIsRejected(t *testing.T) {
	env := newTestEnv(t)
	token, err := issueToken(999, []byte(testSecret), time.Hour)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/diagrams/", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPendingAndSuspendedAreDistinguished(t *testing.T) {
	env := newTestEnv(t)
	_, pendingToken := env.seedUser(t, "pending@example.com", types.RoleUser, types.StatusPending)
	_, suspendedToken := env.seedUser(t, "suspended@example.com", types.RoleUser, types.StatusSuspended)

	rec := env.do(t, http.MethodGet, "/diagrams/", pendingToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account pending approval", decodeBody[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodGet, "/diagrams/", suspendedToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account suspended", decodeBody[ErrorResponse](t, rec).Error)
}

func TestDiagramLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	rec := env.do(t, http.MethodPost, "/diagrams/", token, map[string]any{
		"type":    "labflow",
		"name":    "Bench Layout",
		"content": map[string]any{"nodes": []any{}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[types.Diagram](t, rec)
	assert.Equal(t, "LAB-1", created.ShortID)

	rec = env.do(t, http.MethodGet, "/diagrams/LAB-1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeBody[types.Diagram](t, rec).ID)

	rec = env.do(t, http.MethodPut, "/diagrams/"+created.ID, token, map[string]any{
		"content": map[string]any{"nodes": []any{1}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/diagrams/LAB-1/versions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	versions := decodeBody[[]types.DiagramVersion](t, rec)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[1].VersionNumber)

	rec = env.do(t, http.MethodDelete, "/diagrams/LAB-1", token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/diagrams/LAB-1", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiagramOwnershipIsEnforced(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.seedUser(t, "owner@example.com", types.RoleUser, types.StatusActive)
	_, otherToken := env.seedUser(t, "other@example.com", types.RoleUser, types.StatusActive)
	_, adminToken := env.seedUser(t, "root@example.com", types.RoleAdmin, types.StatusActive)

	rec := env.do(t, http.MethodPost, "/diagrams/", ownerToken, map[string]any{
		"type": "wiring",
		"name": "Panel",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/diagrams/LAB-1", otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/diagrams/LAB-999", otherToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "missing and forbidden stay distinct")

	rec = env.do(t, http.MethodGet, "/diagrams/LAB-1", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDiagramCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	rec := env.do(t, http.MethodPost, "/diagrams/", token, map[string]any{
		"type": "orgchart",
		"name": "Nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/diagrams/", token, map[string]any{
		"type": "labflow",
		"name": "  ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	rec := env.do(t, http.MethodGet, "/admin/users/", userToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin access required", decodeBody[ErrorResponse](t, rec).Error)
}

func TestAdminUserActions(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.seedUser(t, "root@example.com", types.RoleAdmin, types.StatusActive)
	pending, _ := env.seedUser(t, "pending@example.com", types.RoleUser, types.StatusPending)

	rec := env.do(t, http.MethodPost, "/admin/users/", adminToken, map[string]any{
		"action":   "create",
		"email":    "new@example.com",
		"name":     "New User",
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, types.StatusActive, decodeBody[types.User](t, rec).Status)

	rec = env.do(t, http.MethodPost, "/admin/users/", adminToken, map[string]any{
		"action":  "status-change",
		"user_id": pending.ID,
		"status":  types.StatusActive,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.StatusActive, decodeBody[types.User](t, rec).Status)

	rec = env.do(t, http.MethodPost, "/admin/users/", adminToken, map[string]any{
		"action":  "status-change",
		"user_id": pending.ID,
		"status":  types.StatusPending,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid status transition", decodeBody[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/admin/users/", adminToken, map[string]any{
		"action":  "role-change",
		"user_id": pending.ID,
		"role":    types.RoleAdmin,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.RoleAdmin, decodeBody[types.User](t, rec).Role)

	rec = env.do(t, http.MethodPost, "/admin/users/", adminToken, map[string]any{
		"action":   "reset-password",
		"user_id":  pending.ID,
		"password": "N3w!password",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/users/", adminToken, map[string]any{
		"action": "self-destruct",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListUsers(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.seedUser(t, "root@example.com", types.RoleAdmin, types.StatusActive)
	env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	rec := env.do(t, http.MethodGet, "/admin/users/", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decodeBody[[]types.User](t, rec)
	assert.Len(t, users, 2)

	assert.NotContains(t, rec.Body.String(), "password_hash")
	assert.NotContains(t, rec.Body.String(), "reset_token")
}

func TestChangePasswordEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	rec := env.do(t, http.MethodPost, "/auth/change-password", token, map[string]string{
		"currentPassword": "Wr0ng!pass",
		"newPassword":     "N3w!password",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "current password is incorrect", decodeBody[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/auth/change-password", token, map[string]string{
		"currentPassword": testPassword,
		"newPassword":     testPassword,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/change-password", token, map[string]string{
		"currentPassword": testPassword,
		"newPassword":     "N3w!password",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	loginRec := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "N3w!password",
	})
	assert.Equal(t, http.StatusOK, loginRec.Code)
}

func TestForgotPasswordResponseIsUniform(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	known := env.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{
		"email": "alice@example.com",
	})
	unknown := env.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{
		"email": "nobody@example.com",
	})

	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())
}

func TestResetPasswordRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":    "bogus",
		"password": "N3w!password",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid or expired token", decodeBody[ErrorResponse](t, rec).Error)
}

func TestTokenSignedWithWrongSecretIsRejected(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	forged, err := issueToken(user.ID, []byte("other-secret"), time.Hour)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/diagrams/", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	env := newTestEnv(t)
	user, _ := env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	expired, err := issueToken(user.ID, []byte(testSecret), -time.Minute)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/diagrams/", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRateLimitHeadersOnDiagramRoutes(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice@example.com", types.RoleUser, types.StatusActive)

	rec := env.do(t, http.MethodGet, "/diagrams/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", rec.Header().Get("X-RateLimit-Remaining"))
}
