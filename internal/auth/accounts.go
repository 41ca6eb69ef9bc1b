package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/inkstudio/internal/mail"
	"github.com/hitoshi/inkstudio/internal/metrics"
	"github.com/hitoshi/inkstudio/internal/model"
	"github.com/hitoshi/inkstudio/internal/repository"
)

// AccountsConfig はユーザー作成の設定。
type AccountsConfig struct {
	DefaultTokenGrant int
	// WelcomeMailTimeout はウェルカムメール送信1件あたりの上限時間。
	WelcomeMailTimeout time.Duration
}

// Accounts は新規ユーザーの作成とウェルカムメールの送信を担う。
// OTPとOAuthの両方のサインアップ経路から共有される。
type Accounts struct {
	users   repository.UserRepository
	mailer  mail.Mailer
	metrics metrics.MetricsCollector
	config  AccountsConfig

	pending sync.WaitGroup
}

// NewAccounts はAccountsを生成する。
func NewAccounts(
	users repository.UserRepository,
	mailer mail.Mailer,
	collector metrics.MetricsCollector,
	config AccountsConfig,
) *Accounts {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if config.WelcomeMailTimeout <= 0 {
		config.WelcomeMailTimeout = 30 * time.Second
	}
	return &Accounts{
		users:   users,
		mailer:  mailer,
		metrics: collector,
		config:  config,
	}
}

// Create はロールuser、既定のインク残高でユーザーとプロフィールを作成する。
// identityがnilでなければ同一トランザクションで紐付ける。
// 作成に成功するとウェルカムメールをバックグラウンドで送信する（失敗はログのみ）。
// メールアドレスが既に登録済みの場合はrepository.ErrDuplicateを返す。
func (a *Accounts) Create(ctx context.Context, user *model.User, identity *model.Identity, method string) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.Role = model.RoleUser
	user.Tokens = a.config.DefaultTokenGrant

	var err error
	if identity != nil {
		identity.UserID = user.ID
		err = a.users.CreateWithIdentity(ctx, user, identity)
	} else {
		err = a.users.Create(ctx, user)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	a.metrics.RecordUserCreated(method)
	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("method", method),
	)

	a.sendWelcome(user.Email, user.Name)
	return nil
}

// sendWelcome はリクエストのcontextから切り離してウェルカムメールを送信する。
// レスポンス返却後に送信が続いてもよい。
func (a *Accounts) sendWelcome(email, name string) {
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.config.WelcomeMailTimeout)
		defer cancel()

		if err := a.mailer.SendWelcome(ctx, email, name); err != nil {
			slog.Warn("welcome mail delivery failed",
				slog.String("email", email),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait は送信中のウェルカムメールが全て終わるまで待つ。シャットダウン時に使う。
func (a *Accounts) Wait() {
	a.pending.Wait()
}
