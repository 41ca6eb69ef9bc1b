package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/inkstudio/internal/model"
)

var otpColumnNames = []string{"id", "email", "code", "expires_at", "used", "attempts", "created_at"}

func TestPostgresOTPRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOTPRepo(db)

	expires := time.Now().Add(10 * time.Minute)
	created := time.Now()
	mock.ExpectQuery(`INSERT INTO otp_codes`).
		WithArgs("o-1", "alice@example.com", "012345", expires).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	otp := &model.OTPCode{ID: "o-1", Email: "alice@example.com", Code: "012345", ExpiresAt: expires}
	if err := repo.Create(context.Background(), otp); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !otp.CreatedAt.Equal(created) {
		t.Errorf("created_atが反映されていない: %v", otp.CreatedAt)
	}
	assertExpectations(t, mock)
}

// expectLockLatest は最新の有効コードを行ロックするクエリを期待する。
func expectLockLatest(mock sqlmock.Sqlmock, email string, rows *sqlmock.Rows) {
	mock.ExpectQuery(`SELECT id, attempts\s+FROM otp_codes\s+WHERE email = \$1 AND used = false AND expires_at > now\(\)\s+ORDER BY created_at DESC\s+LIMIT 1\s+FOR UPDATE`).
		WithArgs(email).
		WillReturnRows(rows)
}

func latestRow(id string, attempts int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "attempts"}).AddRow(id, attempts)
}

func TestPostgresOTPRepo_ConsumeLatest_LocksAndMarksUsed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOTPRepo(db)

	now := time.Now()
	mock.ExpectBegin()
	expectLockLatest(mock, "alice@example.com", latestRow("o-2", 1))
	mock.ExpectQuery(`FROM otp_codes\s+WHERE email = \$1 AND code = \$2 AND used = false AND expires_at > now\(\)\s+ORDER BY created_at DESC\s+LIMIT 1\s+FOR UPDATE`).
		WithArgs("alice@example.com", "123456").
		WillReturnRows(sqlmock.NewRows(otpColumnNames).
			AddRow("o-2", "alice@example.com", "123456", now.Add(5*time.Minute), false, 1, now))
	mock.ExpectExec(`UPDATE otp_codes SET used = true WHERE id = \$1`).
		WithArgs("o-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	otp, err := repo.ConsumeLatest(context.Background(), "alice@example.com", "123456", 5)
	if err != nil {
		t.Fatalf("ConsumeLatest error: %v", err)
	}
	if otp.ID != "o-2" || !otp.Used {
		t.Errorf("使用済みのレコードが返るべき: %+v", otp)
	}
	assertExpectations(t, mock)
}

func TestPostgresOTPRepo_ConsumeLatest_NoActiveCode(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOTPRepo(db)

	mock.ExpectBegin()
	expectLockLatest(mock, "alice@example.com", sqlmock.NewRows([]string{"id", "attempts"}))
	mock.ExpectCommit()

	_, err := repo.ConsumeLatest(context.Background(), "alice@example.com", "000000", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("有効なコードが無い場合はErrNotFoundを返すべき: got %v", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresOTPRepo_ConsumeLatest_WrongCodeCountsAttempt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOTPRepo(db)

	mock.ExpectBegin()
	expectLockLatest(mock, "alice@example.com", latestRow("o-3", 2))
	mock.ExpectQuery(`AND code = \$2`).
		WithArgs("alice@example.com", "000000").
		WillReturnRows(sqlmock.NewRows(otpColumnNames))
	mock.ExpectQuery(`UPDATE otp_codes SET attempts = attempts \+ 1 WHERE id = \$1 RETURNING attempts`).
		WithArgs("o-3").
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(3))
	// 失敗回数の更新は確定させる
	mock.ExpectCommit()

	_, err := repo.ConsumeLatest(context.Background(), "alice@example.com", "000000", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("不一致の場合はErrNotFoundを返すべき: got %v", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresOTPRepo_ConsumeLatest_LastAttemptInvalidatesCodes(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOTPRepo(db)

	mock.ExpectBegin()
	expectLockLatest(mock, "alice@example.com", latestRow("o-3", 4))
	mock.ExpectQuery(`AND code = \$2`).
		WithArgs("alice@example.com", "000000").
		WillReturnRows(sqlmock.NewRows(otpColumnNames))
	mock.ExpectQuery(`UPDATE otp_codes SET attempts = attempts \+ 1`).
		WithArgs("o-3").
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(5))
	mock.ExpectExec(`UPDATE otp_codes SET used = true WHERE email = \$1 AND used = false`).
		WithArgs("alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	_, err := repo.ConsumeLatest(context.Background(), "alice@example.com", "000000", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresOTPRepo_ConsumeLatest_LockedOutRejectsCorrectCode(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOTPRepo(db)

	// 上限に達したコードはコード照合を行わずに無効化する
	mock.ExpectBegin()
	expectLockLatest(mock, "alice@example.com", latestRow("o-3", 5))
	mock.ExpectExec(`UPDATE otp_codes SET used = true WHERE email = \$1 AND used = false`).
		WithArgs("alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := repo.ConsumeLatest(context.Background(), "alice@example.com", "123456", 5)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresOTPRepo_ConsumeLatest_QueryErrorRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOTPRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, attempts`).
		WithArgs("alice@example.com").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.ConsumeLatest(context.Background(), "alice@example.com", "123456", 5)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("DBエラーはErrNotFoundと区別されるべき: got %v", err)
	}
	assertExpectations(t, mock)
}

func TestPostgresOTPRepo_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresOTPRepo(db)

	before := time.Now().Add(-24 * time.Hour)
	mock.ExpectExec(`DELETE FROM otp_codes WHERE expires_at < \$1`).
		WithArgs(before).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteExpired(context.Background(), before)
	if err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
	if n != 7 {
		t.Errorf("削除件数 = %d, want 7", n)
	}
}
