package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string         // エラーコード
	Message  string         // エラーメッセージ
	Category string         // カテゴリ: auth, validation, ink, catalog, system
	Action   string         // ユーザー向け対処方法
	Details  map[string]any // フィールド単位の詳細（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidEmail         = "INVALID_EMAIL"
	ErrCodeInvalidOrExpiredCode = "INVALID_OR_EXPIRED_CODE"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeOAuthFailed          = "OAUTH_FAILED"
	ErrCodeOAuthUnavailable     = "OAUTH_UNAVAILABLE"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodeInsufficientBalance  = "INSUFFICIENT_BALANCE"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeExampleNotFound      = "EXAMPLE_NOT_FOUND"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeOriginNotAllowed     = "ORIGIN_NOT_ALLOWED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewValidationError はリクエスト検証エラーを生成する。
// fieldsにはフィールド名と違反内容の対応を渡す。
func NewValidationError(fields map[string]string) *APIError {
	details := make(map[string]any, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Invalid request payload.",
		Category: "validation",
		Action:   "Check the highlighted fields and try again.",
		Details:  details,
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  "Invalid email address.",
		Category: "validation",
		Action:   "Enter a valid email address.",
	}
}

// NewInvalidOrExpiredCodeError はOTP検証失敗エラーを生成する。
// 誤りと期限切れを区別しない。
func NewInvalidOrExpiredCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOrExpiredCode,
		Message:  "Invalid or expired code.",
		Category: "auth",
		Action:   "Request a new code and try again.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewOAuthFailedError はOAuth認証失敗エラーを生成する。
func NewOAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthFailed,
		Message:  "Authentication failed.",
		Category: "auth",
		Action:   "Try signing in with Google again.",
	}
}

// NewOAuthUnavailableError はIdPに到達できなかった場合のエラーを生成する。
func NewOAuthUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthUnavailable,
		Message:  "Authentication failed.",
		Category: "auth",
		Action:   "Please wait a moment and try again.",
	}
}

// NewInvalidAmountError は消費量が不正な場合のエラーを生成する。
func NewInvalidAmountError(amount int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("Invalid amount: %d", amount),
		Category: "validation",
		Action:   "Amount must be a positive integer.",
		Details:  map[string]any{"amount": "must be greater than 0"},
	}
}

// NewInsufficientBalanceError は残高不足エラーを生成する。
// 現在残高と必要量は本人のデータなので開示してよい。
func NewInsufficientBalanceError(current, required int) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientBalance,
		Message:  "Insufficient balance.",
		Category: "ink",
		Action:   "Top up your ink balance and try again.",
		Details:  map[string]any{"current": current, "required": required},
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewExampleNotFoundError はサンプル画像が見つからない場合のエラーを生成する。
func NewExampleNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeExampleNotFound,
		Message:  fmt.Sprintf("Example not found: %s", id),
		Category: "catalog",
		Action:   "Check the example ID.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewOriginNotAllowedError は許可されていないオリジンからの状態変更リクエストのエラーを生成する。
func NewOriginNotAllowedError() *APIError {
	return &APIError{
		Code:     ErrCodeOriginNotAllowed,
		Message:  "Request origin is not allowed.",
		Category: "auth",
		Action:   "Use the application from its official site.",
	}
}
