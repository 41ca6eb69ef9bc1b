package auth

import "errors"

var (
	// ErrNoSession はセッションが存在しないか期限切れであることを表す。
	ErrNoSession = errors.New("no valid session")

	// ErrOAuthRejected はIdPが認可コードを拒否したことを表す。
	ErrOAuthRejected = errors.New("oauth provider rejected the request")

	// ErrOAuthUnavailable はIdPに到達できなかったか、IdP側でエラーが発生したことを表す。
	ErrOAuthUnavailable = errors.New("oauth provider unavailable")
)
