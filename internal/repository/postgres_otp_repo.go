package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/inkstudio/internal/database"
	"github.com/hitoshi/inkstudio/internal/model"
)

// PostgresOTPRepo はPostgreSQLを使用したワンタイムコードリポジトリ。
type PostgresOTPRepo struct {
	db *sql.DB
}

// NewPostgresOTPRepo はPostgresOTPRepoを生成する。
func NewPostgresOTPRepo(db *sql.DB) *PostgresOTPRepo {
	return &PostgresOTPRepo{db: db}
}

// Create はコードを保存する。
func (r *PostgresOTPRepo) Create(ctx context.Context, otp *model.OTPCode) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO otp_codes (id, email, code, expires_at, used)
		 VALUES ($1, $2, $3, $4, false)
		 RETURNING created_at`,
		otp.ID, otp.Email, otp.Code, otp.ExpiresAt,
	).Scan(&otp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create otp code: %w", err)
	}
	return nil
}

// ConsumeLatest は一致する最新の有効コードを行ロックして使用済みにする。
// 検証はメールアドレスの最新の有効コードを行ロックしてから行うため、同じメールアドレスへの
// 検証は直列化され、同じコードで並行して検証されても成功するのは1リクエストのみ。
// 一致しない場合は最新コードの失敗回数を1増やし、maxAttemptsに達したら
// そのメールアドレスの未使用コードをすべて使用済みにする。
func (r *PostgresOTPRepo) ConsumeLatest(ctx context.Context, email, code string, maxAttempts int) (*model.OTPCode, error) {
	var otp *model.OTPCode

	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx database.DBTX) error {
		var latestID string
		var attempts int
		err := tx.QueryRowContext(ctx,
			`SELECT id, attempts
			 FROM otp_codes
			 WHERE email = $1 AND used = false AND expires_at > now()
			 ORDER BY created_at DESC
			 LIMIT 1
			 FOR UPDATE`,
			email,
		).Scan(&latestID, &attempts)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock latest otp code: %w", err)
		}

		if attempts >= maxAttempts {
			return invalidateUnused(ctx, tx, email)
		}

		found := &model.OTPCode{}
		err = tx.QueryRowContext(ctx,
			`SELECT id, email, code, expires_at, used, attempts, created_at
			 FROM otp_codes
			 WHERE email = $1 AND code = $2 AND used = false AND expires_at > now()
			 ORDER BY created_at DESC
			 LIMIT 1
			 FOR UPDATE`,
			email, code,
		).Scan(&found.ID, &found.Email, &found.Code, &found.ExpiresAt, &found.Used, &found.Attempts, &found.CreatedAt)
		if err == sql.ErrNoRows {
			return recordFailedAttempt(ctx, tx, email, latestID, maxAttempts)
		}
		if err != nil {
			return fmt.Errorf("failed to find otp code: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE otp_codes SET used = true WHERE id = $1`,
			found.ID,
		); err != nil {
			return fmt.Errorf("failed to mark otp code used: %w", err)
		}

		found.Used = true
		otp = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	// 失敗回数の更新はコミットする必要があるため、不一致はトランザクションの外で返す
	if otp == nil {
		return nil, ErrNotFound
	}
	return otp, nil
}

// recordFailedAttempt は最新コードの失敗回数を1増やし、上限に達したら未使用コードを無効化する。
func recordFailedAttempt(ctx context.Context, tx database.DBTX, email, latestID string, maxAttempts int) error {
	var attempts int
	if err := tx.QueryRowContext(ctx,
		`UPDATE otp_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`,
		latestID,
	).Scan(&attempts); err != nil {
		return fmt.Errorf("failed to increment otp attempts: %w", err)
	}

	if attempts >= maxAttempts {
		return invalidateUnused(ctx, tx, email)
	}
	return nil
}

// invalidateUnused はメールアドレスの未使用コードをすべて使用済みにする。
func invalidateUnused(ctx context.Context, tx database.DBTX, email string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE otp_codes SET used = true WHERE email = $1 AND used = false`,
		email,
	); err != nil {
		return fmt.Errorf("failed to invalidate otp codes: %w", err)
	}
	return nil
}

// DeleteExpired はbefore以前に失効したコードを削除し、削除件数を返す。
func (r *PostgresOTPRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM otp_codes WHERE expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otp codes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ OTPRepository = (*PostgresOTPRepo)(nil)
