package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/inkstudio/internal/mail"
	"github.com/hitoshi/inkstudio/internal/metrics"
	"github.com/hitoshi/inkstudio/internal/model"
	"github.com/hitoshi/inkstudio/internal/repository"
)

// validate はメールアドレスとコードの形式検証に使う。validator.Validateは並行利用してよい。
var validate = validator.New(validator.WithRequiredStructEnabled())

// OTP検証結果のメトリクスラベル。
const (
	verifyResultSuccess = "success"
	verifyResultInvalid = "invalid"
	verifyResultError   = "error"
)

// DefaultOTPMaxAttempts は未使用コードを無効化するまでに許す検証失敗の回数。
const DefaultOTPMaxAttempts = 5

// OTPConfig はワンタイムコード認証の設定。
type OTPConfig struct {
	// TTL はコードの有効期間。
	TTL time.Duration
	// MaxAttempts はメールアドレスごとの検証失敗の上限。0以下ならDefaultOTPMaxAttempts。
	MaxAttempts int
	// LogCodes はメール送信失敗時にコードをDEBUGログへ出力するかどうか。開発環境でのみ有効にする。
	LogCodes bool
}

// LoginResult はサインイン成功時の結果。
type LoginResult struct {
	User    *model.User
	Session *model.Session
	Created bool
}

// OTPService はメールアドレス宛てのワンタイムコードによるサインインを提供する。
type OTPService struct {
	otps     repository.OTPRepository
	users    repository.UserRepository
	accounts *Accounts
	sessions *SessionService
	mailer   mail.Mailer
	metrics  metrics.MetricsCollector
	config   OTPConfig
	now      func() time.Time
}

// NewOTPService はOTPServiceを生成する。
func NewOTPService(
	otps repository.OTPRepository,
	users repository.UserRepository,
	accounts *Accounts,
	sessions *SessionService,
	mailer mail.Mailer,
	collector metrics.MetricsCollector,
	config OTPConfig,
) *OTPService {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultOTPMaxAttempts
	}
	return &OTPService{
		otps:     otps,
		users:    users,
		accounts: accounts,
		sessions: sessions,
		mailer:   mailer,
		metrics:  collector,
		config:   config,
		now:      time.Now,
	}
}

// Send はコードを生成して保存し、メールで送信する。
// メール送信に失敗してもコードは有効なまま成功を返す。
func (s *OTPService) Send(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return model.NewInvalidEmailError()
	}

	code, err := generateOTPCode()
	if err != nil {
		return err
	}

	otp := &model.OTPCode{
		ID:        uuid.New().String(),
		Email:     email,
		Code:      code,
		ExpiresAt: s.now().Add(s.config.TTL),
	}
	if err := s.otps.Create(ctx, otp); err != nil {
		return fmt.Errorf("failed to save otp code: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, email, code, s.config.TTL); err != nil {
		s.metrics.RecordOTPSent(false)
		slog.Warn("otp mail delivery failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		if s.config.LogCodes {
			slog.Debug("otp code issued", slog.String("email", email), slog.String("code", code))
		}
		return nil
	}

	s.metrics.RecordOTPSent(true)
	slog.Info("otp code sent", slog.String("email", email))
	return nil
}

// Verify はコードを検証し、ユーザーの検索または作成を行ってセッションを発行する。
// コードの誤り、期限切れ、失敗回数の超過は区別せず、同じエラーを返す。
// コードはセッション発行前に使用済みになるため、その後のDBエラーで失敗した場合はコードの再送信が必要。
func (s *OTPService) Verify(ctx context.Context, email, code string, client ClientInfo) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return nil, model.NewInvalidEmailError()
	}
	if err := validate.Var(code, "required,len=6,numeric"); err != nil {
		return nil, model.NewValidationError(map[string]string{"code": "must be a 6-digit code"})
	}

	if _, err := s.otps.ConsumeLatest(ctx, email, code, s.config.MaxAttempts); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.RecordOTPVerify(verifyResultInvalid)
			slog.Info("otp verification failed", slog.String("email", email))
			return nil, model.NewInvalidOrExpiredCodeError()
		}
		s.metrics.RecordOTPVerify(verifyResultError)
		return nil, fmt.Errorf("failed to consume otp code: %w", err)
	}

	user, created, err := s.findOrCreate(ctx, email)
	if err != nil {
		s.metrics.RecordOTPVerify(verifyResultError)
		return nil, err
	}

	session, err := s.sessions.Issue(ctx, user, metrics.MethodOTP, client)
	if err != nil {
		s.metrics.RecordOTPVerify(verifyResultError)
		return nil, err
	}

	s.metrics.RecordOTPVerify(verifyResultSuccess)
	return &LoginResult{User: user, Session: session, Created: created}, nil
}

// findOrCreate はメールアドレスでユーザーを検索し、存在しなければ作成する。
// 同じメールアドレスで並行して作成された場合は、先に作成された方を返す。
func (s *OTPService) findOrCreate(ctx context.Context, email string) (*model.User, bool, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}
	if user != nil {
		return user, false, nil
	}

	user = &model.User{Email: email}
	err = s.accounts.Create(ctx, user, nil, metrics.MethodOTP)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, false, err
	}

	user, err = s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, false, fmt.Errorf("user disappeared after duplicate insert: %s", email)
	}
	return user, false, nil
}
