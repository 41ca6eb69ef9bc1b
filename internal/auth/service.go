// Package auth はワンタイムコードとGoogle OAuthによるサインイン、セッション管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/inkstudio/internal/metrics"
	"github.com/hitoshi/inkstudio/internal/model"
	"github.com/hitoshi/inkstudio/internal/repository"
	"github.com/hitoshi/inkstudio/internal/security"
)

// ProviderGoogle はidentitiesに記録するGoogleのプロバイダー名。
const ProviderGoogle = "google"

// maxNameRunes は表示名の最大文字数。
const maxNameRunes = 255

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	AvatarURL      string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state, redirectURI string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code, redirectURI string) (*OAuthUserInfo, error)
}

// Service はGoogle OAuthによるサインインのビジネスロジックを提供する。
type Service struct {
	oauth      OAuthProvider
	users      repository.UserRepository
	identities repository.IdentityRepository
	accounts   *Accounts
	sessions   *SessionService
	sanitizer  security.TextSanitizerService
	urlGuard   security.URLGuardService
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	users repository.UserRepository,
	identities repository.IdentityRepository,
	accounts *Accounts,
	sessions *SessionService,
	sanitizer security.TextSanitizerService,
	urlGuard security.URLGuardService,
) *Service {
	return &Service{
		oauth:      oauth,
		users:      users,
		identities: identities,
		accounts:   accounts,
		sessions:   sessions,
		sanitizer:  sanitizer,
		urlGuard:   urlGuard,
	}
}

// GetLoginURL は新しいstateを生成し、Googleの認証URLとともに返す。
func (s *Service) GetLoginURL(redirectURI string) (string, string, error) {
	state, err := generateState()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}
	return s.oauth.GetLoginURL(state, redirectURI), state, nil
}

// HandleGoogleCallback は認可コードを交換し、ユーザーを特定または作成してセッションを発行する。
// 検索順はidentity、メールアドレスの順で、メールアドレスで見つかった場合はidentityを紐付ける。
// IdPが拒否した場合はOAUTH_FAILED、IdPに到達できない場合はOAUTH_UNAVAILABLEを返す。
func (s *Service) HandleGoogleCallback(ctx context.Context, code, redirectURI string, client ClientInfo) (*LoginResult, error) {
	info, err := s.oauth.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		if errors.Is(err, ErrOAuthRejected) {
			slog.Warn("oauth code rejected", slog.String("error", err.Error()))
			return nil, model.NewOAuthFailedError()
		}
		slog.Error("oauth provider unavailable", slog.String("error", err.Error()))
		return nil, model.NewOAuthUnavailableError()
	}

	// 未確認のメールアドレスでは既存アカウントへの紐付けも新規作成も行わない
	if !info.EmailVerified {
		slog.Warn("oauth email not verified", slog.String("provider_user_id", info.ProviderUserID))
		return nil, model.NewOAuthFailedError()
	}

	user, created, err := s.resolveUser(ctx, info)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.Issue(ctx, user, metrics.MethodGoogle, client)
	if err != nil {
		return nil, err
	}

	return &LoginResult{User: user, Session: session, Created: created}, nil
}

// resolveUser はIdPのユーザー情報に対応するユーザーを返す。第2戻り値は新規作成したかどうか。
func (s *Service) resolveUser(ctx context.Context, info *OAuthUserInfo) (*model.User, bool, error) {
	identity, err := s.identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		user, err := s.users.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, false, fmt.Errorf("identity %s references missing user %s", identity.ID, identity.UserID)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", info.Provider),
		)
		return user, false, nil
	}

	email := NormalizeEmail(info.Email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}
	if user != nil {
		if err := s.link(ctx, user, info); err != nil {
			return nil, false, err
		}
		return user, false, nil
	}

	user = &model.User{
		Email:     email,
		Name:      s.sanitizer.Clean(info.Name, maxNameRunes),
		AvatarURL: s.avatarURL(info.AvatarURL),
	}
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
	}
	err = s.accounts.Create(ctx, user, newIdentity, metrics.MethodGoogle)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, false, err
	}

	// 同じメールアドレスで並行してサインアップされた
	user, err = s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, false, fmt.Errorf("user disappeared after duplicate insert: %s", email)
	}
	if err := s.link(ctx, user, info); err != nil {
		return nil, false, err
	}
	return user, false, nil
}

// link は既存ユーザーにidentityを紐付ける。既に紐付け済みの場合は何もしない。
func (s *Service) link(ctx context.Context, user *model.User, info *OAuthUserInfo) error {
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("failed to link identity: %w", err)
	}
	slog.Info("identity linked to existing user",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return nil
}

// avatarURL はIdPが返したアバターURLを検証し、問題があれば空文字を返す。
func (s *Service) avatarURL(raw string) string {
	if raw == "" {
		return ""
	}
	if err := s.urlGuard.ValidateURL(raw); err != nil {
		slog.Warn("avatar url rejected", slog.String("error", err.Error()))
		return ""
	}
	return raw
}
