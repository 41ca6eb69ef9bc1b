package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Encryption string // "starttls", "tls", "ssl", "none"
	From       string
	Timeout    time.Duration

	// WelcomeGrant はウェルカムメールに記載する初期インク量。
	WelcomeGrant int
}

// sender はgo-mailのClientのうち送信に使う部分。テストで差し替える。
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPMailer はgo-mailでSMTPサーバーに送信するMailer実装。
type SMTPMailer struct {
	client sender
	config SMTPConfig
}

// NewSMTPMailer はSMTPConfigからgo-mailのクライアントを構築する。
// 接続はメール送信のたびに確立するため、ここではネットワークに触れない。
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	opts := []gomail.Option{gomail.WithPort(cfg.Port)}
	if cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(cfg.Timeout))
	}

	switch cfg.Encryption {
	case "ssl":
		opts = append(opts, gomail.WithSSL())
	case "none":
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.NoTLS))
	default:
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	}

	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	slog.Info("mail client initialized",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("encryption", cfg.Encryption),
	)

	return &SMTPMailer{client: client, config: cfg}, nil
}

// SendOTP はサインイン用のワンタイムコードを送信する。
func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	text, html, err := render(otpText, otpHTML, otpData{Code: code, Minutes: int(ttl.Minutes())})
	if err != nil {
		return err
	}
	return m.send(ctx, to, otpSubject, text, html)
}

// SendWelcome は新規登録ユーザーにウェルカムメールを送信する。
func (m *SMTPMailer) SendWelcome(ctx context.Context, to, name string) error {
	text, html, err := render(welcomeText, welcomeHTML, welcomeData{Name: name, Grant: m.config.WelcomeGrant})
	if err != nil {
		return err
	}
	return m.send(ctx, to, welcomeSubject, text, html)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, text, html string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.config.From); err != nil {
		return fmt.Errorf("failed to set FROM address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("failed to set TO address: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(gomail.TypeTextPlain, text)
	msg.AddAlternativeString(gomail.TypeTextHTML, html)

	start := time.Now()
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	slog.Debug("mail sent",
		slog.String("subject", subject),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// compile-time interface check
var _ Mailer = (*SMTPMailer)(nil)
