package database

import (
	"context"
	"database/sql"
	"fmt"
)

// principalSetting はRLSポリシーが参照するセッション変数名。
const principalSetting = "app.current_user_id"

// DBTX は*sql.DBと*sql.Txの両方が満たす、リポジトリが使う最小限のインターフェース。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// WithTx はトランザクションを開始してfnを実行する。
// fnが成功すればコミットし、エラーまたはpanicの場合はロールバックする。panicは再送出する。
func WithTx(ctx context.Context, db TxBeginner, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	return fn(ctx, tx)
}

// WithPrincipal はuserIDをRLSのプリンシパルとして設定したトランザクション内でfnを実行する。
// set_configの第3引数trueによりトランザクションローカルな設定となるため、
// コネクションプールで接続が再利用されても他リクエストに漏れない。
func WithPrincipal(ctx context.Context, db TxBeginner, userID string, fn func(ctx context.Context, tx DBTX) error) error {
	if userID == "" {
		return fmt.Errorf("principal user ID is required")
	}

	return WithTx(ctx, db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT set_config($1, $2, true)`,
			principalSetting, userID,
		); err != nil {
			return fmt.Errorf("failed to set principal: %w", err)
		}
		return fn(ctx, tx)
	})
}
