// Package mail はワンタイムコードとウェルカムメールの送信を提供する。
package mail

import (
	"context"
	"time"
)

// Mailer はメール送信の協調者インターフェース。
// 認証サービスはこのインターフェースにのみ依存し、送信手段を知らない。
type Mailer interface {
	// SendOTP はサインイン用のワンタイムコードを送信する。ttlはコードの有効期間。
	SendOTP(ctx context.Context, to, code string, ttl time.Duration) error

	// SendWelcome は新規登録ユーザーにウェルカムメールを送信する。
	SendWelcome(ctx context.Context, to, name string) error
}
