package repository

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// newMockDB は正規表現マッチのsqlmockを生成する。
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// expectPrincipal はWithPrincipalが発行するBEGINとset_configを期待値に登録する。
func expectPrincipal(mock sqlmock.Sqlmock, userID string) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config\(\$1, \$2, true\)`).
		WithArgs("app.current_user_id", userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func assertExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("期待されたSQLが実行されていません: %v", err)
	}
}

var userColumnNames = []string{
	"id", "email", "name", "avatar_url", "role", "tokens",
	"login_count", "last_login_at", "created_at", "updated_at",
}
