package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/inkstudio/internal/database"
	"github.com/hitoshi/inkstudio/internal/model"
)

// PostgresInkRepo はPostgreSQLを使用したインク残高台帳リポジトリ。
// 残高はusers.tokensに保持し、増減履歴をink_transactionsに記録する。
type PostgresInkRepo struct {
	db           *sql.DB
	profiles     ProfileRepository
	defaultGrant int
}

// NewPostgresInkRepo はPostgresInkRepoを生成する。
// defaultGrantは残高が未設定のユーザーに補完する初期値。
func NewPostgresInkRepo(db *sql.DB, profiles ProfileRepository, defaultGrant int) *PostgresInkRepo {
	return &PostgresInkRepo{db: db, profiles: profiles, defaultGrant: defaultGrant}
}

// GetBalance は残高、ティア、since以降の消費量を1トランザクションで返す。
func (r *PostgresInkRepo) GetBalance(ctx context.Context, userID string, since time.Time) (*model.InkBalance, error) {
	var balance model.InkBalance

	err := database.WithPrincipal(ctx, r.db, userID, func(ctx context.Context, tx database.DBTX) error {
		tokens, err := r.loadTokens(ctx, tx, userID, false)
		if err != nil {
			return err
		}
		balance.Balance = tokens

		tier, err := r.profiles.FindTier(ctx, tx, userID)
		if err != nil {
			return err
		}
		balance.Tier = tier

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(-amount), 0)
			 FROM ink_transactions
			 WHERE user_id = $1 AND amount < 0 AND created_at >= $2`,
			userID, since,
		).Scan(&balance.UsageToday); err != nil {
			return fmt.Errorf("failed to sum ink usage: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// Deduct は行ロックを取得した上で残高からamountを差し引き、履歴を記録する。
// 同一ユーザーへの並行した消費はロックにより直列化される。
func (r *PostgresInkRepo) Deduct(ctx context.Context, userID string, amount int, reason string) (*model.InkDeduction, error) {
	var deduction model.InkDeduction

	err := database.WithPrincipal(ctx, r.db, userID, func(ctx context.Context, tx database.DBTX) error {
		current, err := r.loadTokens(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		if current < amount {
			return &InsufficientBalanceError{Current: current, Required: amount}
		}

		newBalance := current - amount
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET tokens = $2, updated_at = now() WHERE id = $1`,
			userID, newBalance,
		); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ink_transactions (id, user_id, amount, reason, balance_after)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), userID, -amount, reason, newBalance,
		); err != nil {
			return fmt.Errorf("failed to record ink transaction: %w", err)
		}

		deduction = model.InkDeduction{NewBalance: newBalance, Deducted: amount}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &deduction, nil
}

// loadTokens はusers.tokensを読み出す。forUpdateがtrueの場合は行ロックを取得する。
// NULLの場合は既定値で補完して書き戻す。
func (r *PostgresInkRepo) loadTokens(ctx context.Context, tx database.DBTX, userID string, forUpdate bool) (int, error) {
	query := `SELECT tokens FROM users WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var tokens sql.NullInt64
	err := tx.QueryRowContext(ctx, query, userID).Scan(&tokens)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load balance: %w", err)
	}
	if tokens.Valid {
		return int(tokens.Int64), nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET tokens = $2, updated_at = now() WHERE id = $1 AND tokens IS NULL`,
		userID, r.defaultGrant,
	); err != nil {
		return 0, fmt.Errorf("failed to backfill balance: %w", err)
	}
	return r.defaultGrant, nil
}

// compile-time interface check
var _ InkRepository = (*PostgresInkRepo)(nil)
