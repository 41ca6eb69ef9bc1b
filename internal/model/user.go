// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
)

// User はサービス利用ユーザーを表す。
// Tokensはインク残高で、負の値になってはならない。
type User struct {
	ID          string
	Email       string
	Name        string
	AvatarURL   string
	Role        Role
	Tokens      int
	LoginCount  int
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAdmin は管理者かどうかを返す。DBには保存せず、Roleから導出する。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Public はAPIレスポンス用の公開プロジェクションを返す。
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Avatar:  u.AvatarURL,
		Role:    u.Role,
		IsAdmin: u.IsAdmin(),
	}
}

// PublicUser はクライアントに返すユーザー情報。
type PublicUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
	Role    Role   `json:"role"`
	IsAdmin bool   `json:"isAdmin"`
}

// UserProfile はusersと1:1で対応する付随レコード。
// サインアップ時に冪等に作成される。
type UserProfile struct {
	UserID    string
	Tier      string
	CreatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// Tokenは不透明な乱数文字列で、Cookieにそのまま格納される。
// 発行後は更新されず、ExpiresAtを過ぎたものは無効として扱う。
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// OTPCode はメールアドレスの所有確認に使うワンタイムコード。
type OTPCode struct {
	ID        string
	Email     string
	Code      string
	ExpiresAt time.Time
	Used      bool
	// Attempts はこのコードを最新として記録された検証失敗の回数。
	Attempts  int
	CreatedAt time.Time
}
