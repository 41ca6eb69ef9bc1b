package handler

import (
	"context"
	"errors"

	"github.com/hitoshi/inkstudio/internal/auth"
	"github.com/hitoshi/inkstudio/internal/catalog"
	"github.com/hitoshi/inkstudio/internal/model"
)

// --- モック定義 ---

type mockOTPService struct {
	sendFn   func(ctx context.Context, email string) error
	verifyFn func(ctx context.Context, email, code string, client auth.ClientInfo) (*auth.LoginResult, error)
}

func (m *mockOTPService) Send(ctx context.Context, email string) error {
	if m.sendFn != nil {
		return m.sendFn(ctx, email)
	}
	return nil
}

func (m *mockOTPService) Verify(ctx context.Context, email, code string, client auth.ClientInfo) (*auth.LoginResult, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, email, code, client)
	}
	return nil, model.NewInvalidOrExpiredCodeError()
}

type mockOAuthService struct {
	getLoginURLFn func(redirectURI string) (string, string, error)
	callbackFn    func(ctx context.Context, code, redirectURI string, client auth.ClientInfo) (*auth.LoginResult, error)
}

func (m *mockOAuthService) GetLoginURL(redirectURI string) (string, string, error) {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(redirectURI)
	}
	return "", "", errors.New("not configured")
}

func (m *mockOAuthService) HandleGoogleCallback(ctx context.Context, code, redirectURI string, client auth.ClientInfo) (*auth.LoginResult, error) {
	if m.callbackFn != nil {
		return m.callbackFn(ctx, code, redirectURI, client)
	}
	return nil, model.NewOAuthFailedError()
}

type mockSessionService struct {
	signoutFn func(ctx context.Context, token string) error
}

func (m *mockSessionService) Signout(ctx context.Context, token string) error {
	if m.signoutFn != nil {
		return m.signoutFn(ctx, token)
	}
	return nil
}

type mockSessionResolver struct {
	users map[string]*model.User
}

func (m *mockSessionResolver) Resolve(ctx context.Context, token string) (*model.User, error) {
	if user, ok := m.users[token]; ok && token != "" {
		return user, nil
	}
	return nil, auth.ErrNoSession
}

type mockInkService struct {
	getBalanceFn func(ctx context.Context, userID string) (*model.InkBalance, error)
	deductFn     func(ctx context.Context, userID string, amount int, reason string) (*model.InkDeduction, error)
}

func (m *mockInkService) GetBalance(ctx context.Context, userID string) (*model.InkBalance, error) {
	if m.getBalanceFn != nil {
		return m.getBalanceFn(ctx, userID)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockInkService) Deduct(ctx context.Context, userID string, amount int, reason string) (*model.InkDeduction, error) {
	if m.deductFn != nil {
		return m.deductFn(ctx, userID, amount, reason)
	}
	return nil, model.NewUserNotFoundError()
}

type mockExampleService struct {
	listFn       func(ctx context.Context, filter model.ExampleFilter) (*catalog.ListResult, error)
	randomFn     func(ctx context.Context, count int) ([]*model.Example, error)
	featuredFn   func(ctx context.Context) ([]*model.Example, error)
	recordViewFn func(ctx context.Context, id string) (int, error)
}

func (m *mockExampleService) List(ctx context.Context, filter model.ExampleFilter) (*catalog.ListResult, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return &catalog.ListResult{}, nil
}

func (m *mockExampleService) Random(ctx context.Context, count int) ([]*model.Example, error) {
	if m.randomFn != nil {
		return m.randomFn(ctx, count)
	}
	return nil, nil
}

func (m *mockExampleService) Featured(ctx context.Context) ([]*model.Example, error) {
	if m.featuredFn != nil {
		return m.featuredFn(ctx)
	}
	return nil, nil
}

func (m *mockExampleService) RecordView(ctx context.Context, id string) (int, error) {
	if m.recordViewFn != nil {
		return m.recordViewFn(ctx, id)
	}
	return 0, model.NewExampleNotFoundError(id)
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	return m.err
}

var (
	_ OTPServiceInterface     = (*mockOTPService)(nil)
	_ OAuthServiceInterface   = (*mockOAuthService)(nil)
	_ SessionServiceInterface = (*mockSessionService)(nil)
	_ InkServiceInterface     = (*mockInkService)(nil)
	_ ExampleServiceInterface = (*mockExampleService)(nil)
	_ Pinger                  = (*mockPinger)(nil)
)
