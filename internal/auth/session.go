package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/inkstudio/internal/metrics"
	"github.com/hitoshi/inkstudio/internal/model"
	"github.com/hitoshi/inkstudio/internal/repository"
)

// ClientInfo はセッション発行時に記録するクライアント情報。
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// SessionService はセッションの発行・解決・破棄を提供する。
// セッションは発行時点から固定期間で失効し、利用による延長は行わない。
type SessionService struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	metrics  metrics.MetricsCollector
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionService はSessionServiceを生成する。
func NewSessionService(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	collector metrics.MetricsCollector,
	ttl time.Duration,
) *SessionService {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &SessionService{
		sessions: sessions,
		users:    users,
		metrics:  collector,
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL はセッションの有効期間を返す。Cookieの Max-Age に使う。
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue はログイン記録を更新した上で新しいセッションを発行する。
// methodはメトリクスのラベル（"otp", "google"）。
func (s *SessionService) Issue(ctx context.Context, user *model.User, method string, client ClientInfo) (*model.Session, error) {
	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	now := s.now()
	user.LoginCount++
	user.LastLoginAt = &now

	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &model.Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.ttl),
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.metrics.RecordSessionIssued(method)
	slog.Info("session issued",
		slog.String("user_id", user.ID),
		slog.String("method", method),
	)
	return session, nil
}

// Resolve はトークンに紐づく有効なセッションのユーザーを返す。
// トークンが空、存在しない、または期限切れの場合はErrNoSessionを返す。
func (s *SessionService) Resolve(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrNoSession
	}

	user, err := s.sessions.FindUserByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	if user == nil {
		return nil, ErrNoSession
	}
	return user, nil
}

// Signout はセッションを破棄する。トークンが空の場合は何もしない。
func (s *SessionService) Signout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
