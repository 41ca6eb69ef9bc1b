// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/hitoshi/inkstudio/internal/auth"
	"github.com/hitoshi/inkstudio/internal/middleware"
	"github.com/hitoshi/inkstudio/internal/model"
)

// OTPServiceInterface はOTPログインに必要なサービスインターフェース。
type OTPServiceInterface interface {
	Send(ctx context.Context, email string) error
	Verify(ctx context.Context, email, code string, client auth.ClientInfo) (*auth.LoginResult, error)
}

// OAuthServiceInterface はGoogleログインに必要なサービスインターフェース。
type OAuthServiceInterface interface {
	GetLoginURL(redirectURI string) (string, string, error)
	HandleGoogleCallback(ctx context.Context, code, redirectURI string, client auth.ClientInfo) (*auth.LoginResult, error)
}

// SessionServiceInterface はサインアウトに必要なサービスインターフェース。
type SessionServiceInterface interface {
	Signout(ctx context.Context, token string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOTPログイン、Googleログイン、セッション関連のHTTPハンドラー。
type AuthHandler struct {
	otp      OTPServiceInterface
	oauth    OAuthServiceInterface
	sessions SessionServiceInterface
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(otp OTPServiceInterface, oauth OAuthServiceInterface, sessions SessionServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		otp:      otp,
		oauth:    oauth,
		sessions: sessions,
		config:   config,
	}
}

type sendOTPRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,max=254"`
	Code  string `json:"code" validate:"required"`
}

type googleCallbackRequest struct {
	Code        string `json:"code" validate:"required,max=2048"`
	RedirectURI string `json:"redirect_uri" validate:"required,http_url"`
}

type sendOTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type userResponse struct {
	Success bool              `json:"success"`
	User    *model.PublicUser `json:"user"`
}

type googleURLResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	State   string `json:"state"`
}

// SendOTP はログイン用のワンタイムコードをメールで送信する。
// POST /api/auth/otp/send
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if apiErr := decodeAndValidate(r.Body, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.otp.Send(r.Context(), req.Email); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sendOTPResponse{
		Success: true,
		Message: "Verification code sent. Check your email.",
	})
}

// VerifyOTP はワンタイムコードを検証し、セッションCookieを発行する。
// POST /api/auth/otp/verify
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if apiErr := decodeAndValidate(r.Body, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.otp.Verify(r.Context(), req.Email, req.Code, clientInfo(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: result.User.Public()})
}

// GoogleURL はGoogleの同意画面URLとstateを返す。
// stateの保持と照合はクライアントが行う。
// GET /api/auth/google/url?redirect_uri=...
func (h *AuthHandler) GoogleURL(w http.ResponseWriter, r *http.Request) {
	redirectURI := r.URL.Query().Get("redirect_uri")
	if err := requestValidator.Var(redirectURI, "required,http_url"); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(map[string]string{
			"redirect_uri": "must be a valid URL",
		}))
		return
	}

	url, state, err := h.oauth.GetLoginURL(redirectURI)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, googleURLResponse{Success: true, URL: url, State: state})
}

// GoogleCallback は認可コードを交換してログインし、セッションCookieを発行する。
// POST /api/auth/google/callback
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	var req googleCallbackRequest
	if apiErr := decodeAndValidate(r.Body, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	result, err := h.oauth.HandleGoogleCallback(r.Context(), req.Code, req.RedirectURI, clientInfo(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: result.User.Public()})
}

// Session は現在のログインユーザーを返す。SessionMiddlewareの内側で使う。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, userResponse{Success: true, User: user.Public()})
}

// Signout はセッションを破棄する。
// POST /api/auth/signout
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if signoutErr := h.sessions.Signout(r.Context(), cookie.Value); signoutErr != nil {
			slog.Error("failed to sign out", slog.String("error", signoutErr.Error()))
			// 削除に失敗してもCookieはクリアする
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// setSessionCookie はセッショントークンをHTTP Only Cookieに設定する。
// 有効期限は発行時点で固定し、利用による延長は行わない。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientInfo はセッションに記録する接続元情報を取り出す。
func clientInfo(r *http.Request) auth.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return auth.ClientInfo{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
