package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/inkstudio/internal/database"
	"github.com/hitoshi/inkstudio/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
// 自身ではトランザクションを開始せず、WithPrincipal内のtxを受け取って動作する。
type PostgresProfileRepo struct{}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo() *PostgresProfileRepo {
	return &PostgresProfileRepo{}
}

// EnsureProfile はプロフィールが無ければ作成する。
func (r *PostgresProfileRepo) EnsureProfile(ctx context.Context, tx database.DBTX, userID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, tier)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, model.TierFree,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure profile: %w", err)
	}
	return nil
}

// FindTier はユーザーのティアを返す。プロフィールが無い場合はmodel.TierFreeを返す。
func (r *PostgresProfileRepo) FindTier(ctx context.Context, tx database.DBTX, userID string) (string, error) {
	var tier string
	err := tx.QueryRowContext(ctx,
		`SELECT tier FROM user_profiles WHERE user_id = $1`,
		userID,
	).Scan(&tier)
	if err == sql.ErrNoRows {
		return model.TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find tier: %w", err)
	}
	return tier, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
