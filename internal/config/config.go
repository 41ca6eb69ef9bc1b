package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	// EnvDevelopment はローカル開発環境。Cookieのsecure属性を付けない。
	EnvDevelopment = "development"
	// EnvProduction は本番環境。
	EnvProduction = "production"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"development" validate:"oneof=development production"`

	// Database
	DatabaseURL string `env:"DATABASE_URL,notEmpty" validate:"url"`

	// OAuth
	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID,notEmpty"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET,notEmpty"`
	OAuthTimeout       time.Duration `env:"OAUTH_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	// SMTP（開発環境ではSMTP_HOST未設定時にログ出力のみのMailerを使う）
	SMTPHost       string        `env:"SMTP_HOST" validate:"required_if=AppEnv production,omitempty,hostname|ip"`
	SMTPPort       int           `env:"SMTP_PORT" envDefault:"587" validate:"min=1,max=65535"`
	SMTPUsername   string        `env:"SMTP_USERNAME"`
	SMTPPassword   string        `env:"SMTP_PASSWORD"`
	SMTPEncryption string        `env:"SMTP_ENCRYPTION" envDefault:"starttls" validate:"oneof=starttls tls ssl none"`
	SMTPFrom       string        `env:"SMTP_FROM" validate:"required_with=SMTPHost,omitempty,email"`
	SMTPTimeout    time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	// Auth
	OTPTTL            time.Duration `env:"OTP_TTL" envDefault:"10m" validate:"gt=0"`
	OTPMaxAttempts    int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5" validate:"min=1,max=20"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"720h" validate:"gte=1h"`
	DefaultTokenGrant int           `env:"DEFAULT_TOKEN_GRANT" envDefault:"100" validate:"min=0"`

	// Rate Limit
	RateLimitOTPPerEmail int `env:"RATE_LIMIT_OTP_PER_EMAIL" envDefault:"5" validate:"min=1"`
	RateLimitAuthPerIP   int `env:"RATE_LIMIT_AUTH_PER_IP" envDefault:"30" validate:"min=0"`
	RateLimitGeneral     int `env:"RATE_LIMIT_GENERAL" envDefault:"120" validate:"min=1"`

	// Cleanup
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h" validate:"gt=0"`
	OTPRetention    time.Duration `env:"OTP_RETENTION" envDefault:"24h" validate:"gte=0"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080" validate:"numeric"`
	// TrustedProxyCIDRs はX-Forwarded-For/X-Real-IPを信頼する直前プロキシのアドレス範囲。
	// 空の場合は転送ヘッダーを無視し、TCP接続元のIPでレート制限する。
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:"," validate:"dive,cidr|ip"`

	// Cookie
	CookieDomain string `env:"COOKIE_DOMAIN" validate:"omitempty,max=253"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000" validate:"http_url"`
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Load は.envファイル（存在すれば）と環境変数からConfigを読み込み、値を検証する。
// 必須環境変数の欠落や不正な値がある場合はエラーを返す。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			msgs := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				msgs = append(msgs, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDevelopment はローカル開発環境かどうかを返す。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// CookieSecure はセッションCookieにsecure属性を付けるかどうかを返す。
func (c *Config) CookieSecure() bool {
	return !c.IsDevelopment()
}

// SessionMaxAge はセッションCookieの有効期間（秒）を返す。
func (c *Config) SessionMaxAge() int {
	return int(c.SessionTTL / time.Second)
}

// SMTPEnabled はSMTPでメールを送信するかどうかを返す。
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}
