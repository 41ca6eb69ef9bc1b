// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/inkstudio/internal/database"
	"github.com/hitoshi/inkstudio/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// usersテーブル自体はRLS対象外で、セッション解決やメール検索はプリンシパルなしで行う。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーとプロフィールを新規ユーザーのプリンシパルで作成する。
	// メールアドレスが既に登録済みの場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザー、プロフィール、identityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// RecordLogin は最終ログイン日時を更新し、ログイン回数を1増やす。
	RecordLogin(ctx context.Context, id string) error
}

// ProfileRepository はuser_profilesの永続化インターフェース。
// user_profilesはRLS対象のため、呼び出し側がプリンシパル設定済みのtxを渡す。
type ProfileRepository interface {
	// EnsureProfile はプロフィールが無ければ作成する。既に存在する場合は何もしない。
	EnsureProfile(ctx context.Context, tx database.DBTX, userID string) error

	// FindTier はユーザーのティアを返す。プロフィールが無い場合はmodel.TierFreeを返す。
	FindTier(ctx context.Context, tx database.DBTX, userID string) (string, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// OTPRepository はワンタイムコードの永続化インターフェース。
type OTPRepository interface {
	// Create はコードを保存する。
	Create(ctx context.Context, otp *model.OTPCode) error

	// ConsumeLatest はemailとcodeが一致する未使用かつ有効期限内の最新レコードを
	// 行ロックした上で使用済みにし、そのレコードを返す。該当が無ければErrNotFoundを返す。
	// 不一致はemailの最新コードの失敗回数として記録し、maxAttemptsに達すると
	// emailの未使用コードをすべて無効化する。
	ConsumeLatest(ctx context.Context, email, code string, maxAttempts int) (*model.OTPCode, error)

	// DeleteExpired はbefore以前に失効したコードを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindUserByToken はトークンに紐づく有効なセッションのユーザーを返す。
	// 存在しないか期限切れの場合はnilを返す。
	FindUserByToken(ctx context.Context, token string) (*model.User, error)

	// DeleteByToken は指定トークンのセッションを削除する。存在しなくてもエラーにしない。
	DeleteByToken(ctx context.Context, token string) error

	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// InkRepository はインク残高台帳の永続化インターフェース。
// いずれの操作も対象ユーザーをプリンシパルとしたトランザクションで実行する。
type InkRepository interface {
	// GetBalance は残高、ティア、since以降の消費量を返す。
	// 残高がNULLのユーザーは既定値で補完して永続化する。
	// ユーザーが存在しない場合はErrNotFoundを返す。
	GetBalance(ctx context.Context, userID string, since time.Time) (*model.InkBalance, error)

	// Deduct は行ロックを取得した上で残高からamountを差し引き、履歴を記録する。
	// 残高不足の場合は*InsufficientBalanceErrorを返し、何も変更しない。
	Deduct(ctx context.Context, userID string, amount int, reason string) (*model.InkDeduction, error)
}

// ExampleRepository はサンプル画像カタログの永続化インターフェース。
type ExampleRepository interface {
	// List はフィルタ条件に一致するサンプルを新しい順に返す。第2戻り値は総件数。
	List(ctx context.Context, filter model.ExampleFilter) ([]*model.Example, int, error)

	// Random は無作為に選んだn件を返す。
	Random(ctx context.Context, n int) ([]*model.Example, error)

	// Featured はおすすめのサンプルを新しい順に最大limit件返す。
	Featured(ctx context.Context, limit int) ([]*model.Example, error)

	// IncrementViews は閲覧数を1増やし、更新後の値を返す。存在しない場合はErrNotFoundを返す。
	IncrementViews(ctx context.Context, id string) (int, error)
}
