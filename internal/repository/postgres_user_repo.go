package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/inkstudio/internal/database"
	"github.com/hitoshi/inkstudio/internal/model"
)

const userColumns = `id, email, name, avatar_url, role, tokens, login_count, last_login_at, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser はuserColumnsの順で1行をスキャンする。
// tokensがNULLの行は0として読み出す（補完はInkRepositoryが行う）。
func scanUser(row rowScanner) (*model.User, error) {
	var (
		user        model.User
		name        sql.NullString
		avatarURL   sql.NullString
		role        string
		tokens      sql.NullInt64
		lastLoginAt sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Email, &name, &avatarURL, &role, &tokens,
		&user.LoginCount, &lastLoginAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.Name = name.String
	user.AvatarURL = avatarURL.String
	user.Role = model.Role(role)
	user.Tokens = int(tokens.Int64)
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		user.LastLoginAt = &t
	}
	return &user, nil
}

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db       *sql.DB
	profiles ProfileRepository
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB, profiles ProfileRepository) *PostgresUserRepo {
	return &PostgresUserRepo{db: db, profiles: profiles}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail は正規化済みメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// Create はユーザーとプロフィールを新規ユーザーのプリンシパルで作成する。
// user.IDは呼び出し側で採番済みであること。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	return r.create(ctx, user, nil)
}

// CreateWithIdentity はユーザー、プロフィール、identityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return r.create(ctx, user, identity)
}

func (r *PostgresUserRepo) create(ctx context.Context, user *model.User, identity *model.Identity) error {
	err := database.WithPrincipal(ctx, r.db, user.ID, func(ctx context.Context, tx database.DBTX) error {
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO users (id, email, name, avatar_url, role, tokens)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at, updated_at`,
			user.ID, user.Email, nullString(user.Name), nullString(user.AvatarURL), string(user.Role), user.Tokens,
		).Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		if err := r.profiles.EnsureProfile(ctx, tx, user.ID); err != nil {
			return err
		}

		if identity != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert identity: %w", err)
			}
		}
		return nil
	})
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// RecordLogin は最終ログイン日時を更新し、ログイン回数を1増やす。
func (r *PostgresUserRepo) RecordLogin(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET last_login_at = now(), login_count = login_count + 1, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
