package mail

import (
	"context"
	"log/slog"
	"time"
)

// LogMailer はメールを送信せずログに出力するMailer実装。
// SMTPサーバーを用意しないローカル開発で使用する。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendOTP はコードをDEBUGレベルで出力する。
func (m *LogMailer) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	m.logger.DebugContext(ctx, "otp mail (not sent)",
		slog.String("to", to),
		slog.String("code", code),
		slog.Duration("ttl", ttl),
	)
	return nil
}

// SendWelcome は宛先のみをINFOレベルで出力する。
func (m *LogMailer) SendWelcome(ctx context.Context, to, name string) error {
	m.logger.InfoContext(ctx, "welcome mail (not sent)", slog.String("to", to))
	return nil
}

// compile-time interface check
var _ Mailer = (*LogMailer)(nil)
