package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/vault-watch/internal/web/middleware"
)

func loginRequestRecorder(handler *AuthHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler.Login(recorder, req)
	return recorder
}

func TestAuthHandler_Login_Success(t *testing.T) {
	sm := middleware.NewSessionManager("test-secret")
	handler := NewAuthHandler(testConfig(), sm)

	recorder := loginRequestRecorder(handler, `{"username": "admin", "password": "secret"}`)

	assertStatusCode(t, recorder, http.StatusOK)
	assertContentType(t, recorder, "application/json")

	var resp map[string]string
	parseJSONResponse(t, recorder, &resp)
	if resp["session_id"] == "" {
		t.Error("expected session_id to be set")
	}
	if sm.GetSession(resp["session_id"]) == nil {
		t.Error("session not registered with the manager")
	}

	cookies := recorder.Result().Cookies()
	if len(cookies) == 0 {
		t.Error("expected a session cookie")
	}
}

func TestAuthHandler_Login_WrongCredentials(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"username": "admin", "password": "nope"}`},
		{"wrong username", `{"username": "root", "password": "secret"}`},
		{"empty", `{"username": "", "password": ""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := middleware.NewSessionManager("test-secret")
			handler := NewAuthHandler(testConfig(), sm)

			recorder := loginRequestRecorder(handler, tt.body)
			assertStatusCode(t, recorder, http.StatusUnauthorized)
		})
	}
}

func TestAuthHandler_Login_NotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Web.AdminUser = ""
	cfg.Web.AdminPass = ""
	handler := NewAuthHandler(cfg, middleware.NewSessionManager("test-secret"))

	recorder := loginRequestRecorder(handler, `{"username": "admin", "password": "secret"}`)
	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
}

func TestAuthHandler_Login_InvalidBody(t *testing.T) {
	handler := NewAuthHandler(testConfig(), middleware.NewSessionManager("test-secret"))
	recorder := loginRequestRecorder(handler, `{not json`)
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestAuthHandler_LogoutAndStatus(t *testing.T) {
	sm := middleware.NewSessionManager("test-secret")
	handler := NewAuthHandler(testConfig(), sm)

	session, err := sm.CreateSession("admin")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Status with bearer token.
	req := httptest.NewRequest("GET", "/api/v1/auth/status", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	recorder := httptest.NewRecorder()
	handler.Status(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	var status map[string]any
	parseJSONResponse(t, recorder, &status)
	if status["authenticated"] != true {
		t.Errorf("authenticated = %v, want true", status["authenticated"])
	}

	// Logout destroys the session.
	req = httptest.NewRequest("POST", "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	recorder = httptest.NewRecorder()
	handler.Logout(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	if sm.GetSession(session.ID) != nil {
		t.Error("session survived logout")
	}
}
