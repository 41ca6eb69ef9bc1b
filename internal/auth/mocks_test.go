package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/inkstudio/internal/mail"
	"github.com/hitoshi/inkstudio/internal/model"
	"github.com/hitoshi/inkstudio/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn        func(ctx context.Context, email string) (*model.User, error)
	createFn             func(ctx context.Context, user *model.User) error
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
	recordLoginFn        func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

func (m *mockUserRepo) RecordLogin(ctx context.Context, id string) error {
	if m.recordLoginFn != nil {
		return m.recordLoginFn(ctx, id)
	}
	return nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
	createFn         func(ctx context.Context, identity *model.Identity) error
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	if m.createFn != nil {
		return m.createFn(ctx, identity)
	}
	return nil
}

type mockSessionRepo struct {
	createFn          func(ctx context.Context, session *model.Session) error
	findUserByTokenFn func(ctx context.Context, token string) (*model.User, error)
	deleteByTokenFn   func(ctx context.Context, token string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindUserByToken(ctx context.Context, token string) (*model.User, error) {
	if m.findUserByTokenFn != nil {
		return m.findUserByTokenFn(ctx, token)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	if m.deleteByTokenFn != nil {
		return m.deleteByTokenFn(ctx, token)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

type mockOTPRepo struct {
	createFn        func(ctx context.Context, otp *model.OTPCode) error
	consumeLatestFn func(ctx context.Context, email, code string, maxAttempts int) (*model.OTPCode, error)
}

func (m *mockOTPRepo) Create(ctx context.Context, otp *model.OTPCode) error {
	if m.createFn != nil {
		return m.createFn(ctx, otp)
	}
	return nil
}

func (m *mockOTPRepo) ConsumeLatest(ctx context.Context, email, code string, maxAttempts int) (*model.OTPCode, error) {
	if m.consumeLatestFn != nil {
		return m.consumeLatestFn(ctx, email, code, maxAttempts)
	}
	return nil, repository.ErrNotFound
}

func (m *mockOTPRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// mockMailer はウェルカムメールがバックグラウンドで送られるため、呼び出し記録をロックで保護する。
type mockMailer struct {
	mu            sync.Mutex
	sendOTPFn     func(ctx context.Context, to, code string, ttl time.Duration) error
	sendWelcomeFn func(ctx context.Context, to, name string) error
	otpCodes      []string
	welcomed      []string
}

func (m *mockMailer) SendOTP(ctx context.Context, to, code string, ttl time.Duration) error {
	m.mu.Lock()
	m.otpCodes = append(m.otpCodes, code)
	m.mu.Unlock()
	if m.sendOTPFn != nil {
		return m.sendOTPFn(ctx, to, code, ttl)
	}
	return nil
}

func (m *mockMailer) SendWelcome(ctx context.Context, to, name string) error {
	m.mu.Lock()
	m.welcomed = append(m.welcomed, to)
	m.mu.Unlock()
	if m.sendWelcomeFn != nil {
		return m.sendWelcomeFn(ctx, to, name)
	}
	return nil
}

func (m *mockMailer) welcomedEmails() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.welcomed...)
}

type mockOAuthProvider struct {
	getLoginURLFn  func(state, redirectURI string) string
	exchangeCodeFn func(ctx context.Context, code, redirectURI string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state, redirectURI string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state, redirectURI)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code, redirectURI string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code, redirectURI)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ repository.OTPRepository = (*mockOTPRepo)(nil)
var _ mail.Mailer = (*mockMailer)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)
