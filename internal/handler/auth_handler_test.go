package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/inkstudio/internal/auth"
	"github.com/hitoshi/inkstudio/internal/middleware"
	"github.com/hitoshi/inkstudio/internal/model"
)

var testAuthConfig = AuthHandlerConfig{
	CookieDomain:  "",
	CookieSecure:  true,
	SessionMaxAge: 30 * 24 * 60 * 60,
}

func testLoginResult() *auth.LoginResult {
	return &auth.LoginResult{
		User: &model.User{
			ID:    "user-123",
			Email: "alice@example.com",
			Name:  "Alice",
			Role:  model.RoleUser,
		},
		Session: &model.Session{
			Token:     "token-abc",
			UserID:    "user-123",
			ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
		},
		Created: true,
	}
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, resp *http.Response) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- SendOTP ---

func TestAuthHandler_SendOTP_Success(t *testing.T) {
	var gotEmail string
	svc := &mockOTPService{
		sendFn: func(ctx context.Context, email string) error {
			gotEmail = email
			return nil
		},
	}
	h := NewAuthHandler(svc, &mockOAuthService{}, &mockSessionService{}, testAuthConfig)

	w := httptest.NewRecorder()
	h.SendOTP(w, jsonRequest(http.MethodPost, "/api/auth/otp/send", `{"email":"alice@example.com"}`))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if gotEmail != "alice@example.com" {
		t.Errorf("email = %q", gotEmail)
	}

	var body sendOTPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !body.Success || body.Message == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_SendOTP_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		sendErr  error
		wantCode string
	}{
		{"malformed json", `{"email":`, nil, model.ErrCodeInvalidRequest},
		{"missing email", `{}`, nil, model.ErrCodeInvalidRequest},
		{"unknown field", `{"email":"a@example.com","admin":true}`, nil, model.ErrCodeInvalidRequest},
		{"trailing data", `{"email":"a@example.com"}{}`, nil, model.ErrCodeInvalidRequest},
		{"invalid email from service", `{"email":"not-an-email"}`, model.NewInvalidEmailError(), model.ErrCodeInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOTPService{
				sendFn: func(ctx context.Context, email string) error { return tt.sendErr },
			}
			h := NewAuthHandler(svc, &mockOAuthService{}, &mockSessionService{}, testAuthConfig)

			w := httptest.NewRecorder()
			h.SendOTP(w, jsonRequest(http.MethodPost, "/api/auth/otp/send", tt.body))

			resp := w.Result()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
			if body := decodeError(t, resp); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthHandler_SendOTP_StorageFailure_Returns500(t *testing.T) {
	svc := &mockOTPService{
		sendFn: func(ctx context.Context, email string) error {
			return errors.New("pq: connection refused")
		},
	}
	h := NewAuthHandler(svc, &mockOAuthService{}, &mockSessionService{}, testAuthConfig)

	w := httptest.NewRecorder()
	h.SendOTP(w, jsonRequest(http.MethodPost, "/api/auth/otp/send", `{"email":"alice@example.com"}`))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	body := decodeError(t, resp)
	if body.Code != model.ErrCodeInternal || strings.Contains(body.Message, "pq") {
		t.Errorf("body = %+v, internal details must not leak", body)
	}
}

// --- VerifyOTP ---

func TestAuthHandler_VerifyOTP_Success_SetsCookie(t *testing.T) {
	result := testLoginResult()
	var gotClient auth.ClientInfo
	svc := &mockOTPService{
		verifyFn: func(ctx context.Context, email, code string, client auth.ClientInfo) (*auth.LoginResult, error) {
			if email != "alice@example.com" || code != "123456" {
				t.Errorf("email=%q code=%q", email, code)
			}
			gotClient = client
			return result, nil
		},
	}
	h := NewAuthHandler(svc, &mockOAuthService{}, &mockSessionService{}, testAuthConfig)

	req := jsonRequest(http.MethodPost, "/api/auth/otp/verify", `{"email":"alice@example.com","code":"123456"}`)
	req.RemoteAddr = "203.0.113.9:4567"
	req.Header.Set("User-Agent", "test-agent")
	w := httptest.NewRecorder()
	h.VerifyOTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cookie := findCookie(resp, middleware.SessionCookieName)
	if cookie == nil {
		t.Fatal("session cookie not set")
	}
	if cookie.Value != "token-abc" {
		t.Errorf("cookie value = %q", cookie.Value)
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie flags: HttpOnly=%v Secure=%v SameSite=%v", cookie.HttpOnly, cookie.Secure, cookie.SameSite)
	}
	if cookie.MaxAge != testAuthConfig.SessionMaxAge || cookie.Path != "/" {
		t.Errorf("cookie MaxAge=%d Path=%q", cookie.MaxAge, cookie.Path)
	}

	if gotClient.IPAddress != "203.0.113.9" || gotClient.UserAgent != "test-agent" {
		t.Errorf("client = %+v", gotClient)
	}

	var body struct {
		Success bool             `json:"success"`
		User    model.PublicUser `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !body.Success || body.User.ID != "user-123" || body.User.IsAdmin {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_VerifyOTP_InvalidCode_NoCookie(t *testing.T) {
	h := NewAuthHandler(&mockOTPService{}, &mockOAuthService{}, &mockSessionService{}, testAuthConfig)

	w := httptest.NewRecorder()
	h.VerifyOTP(w, jsonRequest(http.MethodPost, "/api/auth/otp/verify", `{"email":"alice@example.com","code":"000000"}`))

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if cookie := findCookie(resp, middleware.SessionCookieName); cookie != nil {
		t.Errorf("cookie must not be set, got %+v", cookie)
	}
	if body := decodeError(t, resp); body.Code != model.ErrCodeInvalidOrExpiredCode {
		t.Errorf("code = %q", body.Code)
	}
}

func TestAuthHandler_VerifyOTP_InsecureCookieInDevelopment(t *testing.T) {
	svc := &mockOTPService{
		verifyFn: func(ctx context.Context, email, code string, client auth.ClientInfo) (*auth.LoginResult, error) {
			return testLoginResult(), nil
		},
	}
	cfg := testAuthConfig
	cfg.CookieSecure = false
	h := NewAuthHandler(svc, &mockOAuthService{}, &mockSessionService{}, cfg)

	w := httptest.NewRecorder()
	h.VerifyOTP(w, jsonRequest(http.MethodPost, "/api/auth/otp/verify", `{"email":"alice@example.com","code":"123456"}`))

	cookie := findCookie(w.Result(), middleware.SessionCookieName)
	if cookie == nil || cookie.Secure {
		t.Errorf("cookie = %+v, want non-secure cookie", cookie)
	}
}

// --- Google OAuth ---

func TestAuthHandler_GoogleURL(t *testing.T) {
	svc := &mockOAuthService{
		getLoginURLFn: func(redirectURI string) (string, string, error) {
			return "https://accounts.google.com/o/oauth2/v2/auth?redirect_uri=" + redirectURI, "state-1", nil
		},
	}
	h := NewAuthHandler(&mockOTPService{}, svc, &mockSessionService{}, testAuthConfig)

	w := httptest.NewRecorder()
	h.GoogleURL(w, httptest.NewRequest(http.MethodGet, "/api/auth/google/url?redirect_uri=https://app.example.com/callback", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body googleURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !strings.HasPrefix(body.URL, "https://accounts.google.com/") || body.State != "state-1" {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_GoogleURL_MissingRedirect_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockOTPService{}, &mockOAuthService{}, &mockSessionService{}, testAuthConfig)

	w := httptest.NewRecorder()
	h.GoogleURL(w, httptest.NewRequest(http.MethodGet, "/api/auth/google/url", nil))

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_GoogleCallback(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCookie bool
	}{
		{"success", `{"code":"auth-code","redirect_uri":"https://app.example.com/cb"}`, nil, http.StatusOK, true},
		{"missing code", `{"redirect_uri":"https://app.example.com/cb"}`, nil, http.StatusBadRequest, false},
		{"invalid redirect uri", `{"code":"auth-code","redirect_uri":"not a url"}`, nil, http.StatusBadRequest, false},
		{"provider rejected", `{"code":"bad","redirect_uri":"https://app.example.com/cb"}`, model.NewOAuthFailedError(), http.StatusBadRequest, false},
		{"provider unavailable", `{"code":"auth-code","redirect_uri":"https://app.example.com/cb"}`, model.NewOAuthUnavailableError(), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOAuthService{
				callbackFn: func(ctx context.Context, code, redirectURI string, client auth.ClientInfo) (*auth.LoginResult, error) {
					if tt.err != nil {
						return nil, tt.err
					}
					return testLoginResult(), nil
				},
			}
			h := NewAuthHandler(&mockOTPService{}, svc, &mockSessionService{}, testAuthConfig)

			w := httptest.NewRecorder()
			h.GoogleCallback(w, jsonRequest(http.MethodPost, "/api/auth/google/callback", tt.body))

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := findCookie(resp, middleware.SessionCookieName) != nil; got != tt.wantCookie {
				t.Errorf("cookie set = %v, want %v", got, tt.wantCookie)
			}
		})
	}
}

// --- Session / Signout ---

func TestAuthHandler_Session_ReturnsPublicUser(t *testing.T) {
	h := NewAuthHandler(&mockOTPService{}, &mockOAuthService{}, &mockSessionService{}, testAuthConfig)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req = req.WithContext(middleware.ContextWithUser(req.Context(), &model.User{
		ID: "admin-1", Email: "admin@example.com", Role: model.RoleAdmin,
	}))
	w := httptest.NewRecorder()
	h.Session(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var body struct {
		Success bool             `json:"success"`
		User    model.PublicUser `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !body.Success || body.User.ID != "admin-1" || !body.User.IsAdmin {
		t.Errorf("body = %+v", body)
	}
}

func TestAuthHandler_Session_NoUser_Returns401(t *testing.T) {
	h := NewAuthHandler(&mockOTPService{}, &mockOAuthService{}, &mockSessionService{}, testAuthConfig)

	w := httptest.NewRecorder()
	h.Session(w, httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Signout_ClearsCookie(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		signoutErr error
		wantCalled bool
	}{
		{"with session", "token-abc", nil, true},
		{"delete fails", "token-abc", errors.New("db down"), true},
		{"without cookie", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			sessions := &mockSessionService{
				signoutFn: func(ctx context.Context, token string) error {
					called = true
					if token != tt.cookie {
						t.Errorf("token = %q, want %q", token, tt.cookie)
					}
					return tt.signoutErr
				},
			}
			h := NewAuthHandler(&mockOTPService{}, &mockOAuthService{}, sessions, testAuthConfig)

			req := httptest.NewRequest(http.MethodPost, "/api/auth/signout", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			h.Signout(w, req)

			resp := w.Result()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
			if called != tt.wantCalled {
				t.Errorf("signout called = %v, want %v", called, tt.wantCalled)
			}
			cookie := findCookie(resp, middleware.SessionCookieName)
			if cookie == nil || cookie.MaxAge >= 0 || cookie.Value != "" {
				t.Errorf("cookie = %+v, want cleared cookie", cookie)
			}
		})
	}
}
