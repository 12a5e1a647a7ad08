package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc *Service) http.Handler {
	h := &Handler{Service: svc}
	mw := Middleware{Service: svc}
	r := chi.NewRouter()
	r.Get("/auth/check-admin-exists", h.CheckAdminExists)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth)
		r.Get("/auth/check-admin", h.CheckAdmin)
		r.Get("/auth/me", h.Me)
		r.Post("/auth/change-password", h.ChangePassword)
		r.With(RequireRole("auditor")).Get("/auth/audit", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func errorCode(payload map[string]any) string {
	e, _ := payload["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestAuthHandlersFlow(t *testing.T) {
	svc, _ := newTestService(t)
	router := newTestRouter(svc)

	rec, payload := doJSON(t, router, http.MethodGet, "/auth/check-admin-exists", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, payload["data"].(map[string]any)["adminExists"])

	rec, _ = doJSON(t, router, http.MethodPost, "/auth/register", `{"username":"admin","password":"secret123"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, payload = doJSON(t, router, http.MethodPost, "/auth/register", `{"username":"other","password":"secret123"}`, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "ADMIN_EXISTS", errorCode(payload))

	rec, payload = doJSON(t, router, http.MethodPost, "/auth/login", `{"username":"admin","password":"secret123"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	token := payload["data"].(map[string]any)["token"].(string)
	require.NotEmpty(t, token)

	rec, payload = doJSON(t, router, http.MethodGet, "/auth/me", "", map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "admin", payload["data"].(map[string]any)["username"])

	rec, payload = doJSON(t, router, http.MethodGet, "/auth/check-admin", "", map[string]string{TokenHeader: token})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, payload["data"].(map[string]any)["isAdmin"])

	rec, _ = doJSON(t, router, http.MethodPost, "/auth/change-password", `{"currentPassword":"secret123","newPassword":"changed1"}`, map[string]string{TokenHeader: token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/auth/login", `{"username":"admin","password":"changed1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthHandlersRejectMissingToken(t *testing.T) {
	svc, _ := newTestService(t)
	router := newTestRouter(svc)

	rec, payload := doJSON(t, router, http.MethodGet, "/auth/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "NO_TOKEN", errorCode(payload))

	rec, payload = doJSON(t, router, http.MethodGet, "/auth/me", "", map[string]string{"Authorization": "Bearer garbage"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "INVALID_TOKEN", errorCode(payload))
}

func TestAuthHandlersValidatePayload(t *testing.T) {
	svc, _ := newTestService(t)
	router := newTestRouter(svc)

	rec, payload := doJSON(t, router, http.MethodPost, "/auth/register", `{"username":"admin","password":"abc"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", errorCode(payload))

	rec, payload = doJSON(t, router, http.MethodPost, "/auth/login", `{`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "BAD_REQUEST", errorCode(payload))
}

func TestRequireRoleForbidden(t *testing.T) {
	svc, _ := newTestService(t)
	registerAdmin(t, svc)
	result, err := svc.Login(t.Context(), "admin", "secret123")
	require.NoError(t, err)

	router := newTestRouter(svc)
	rec, payload := doJSON(t, router, http.MethodGet, "/auth/audit", "", map[string]string{"Authorization": "Bearer " + result.Token})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "FORBIDDEN", errorCode(payload))
}

func TestExtractTokenPrefersBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc")
	req.Header.Set(TokenHeader, "xyz")
	require.Equal(t, "abc", ExtractToken(req))

	req.Header.Del("Authorization")
	require.Equal(t, "xyz", ExtractToken(req))
}
