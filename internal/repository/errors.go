package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var (
	// ErrNotFound は対象レコードが存在しないことを表す。
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate は一意制約に違反したことを表す。
	ErrDuplicate = errors.New("duplicate record")
)

// InsufficientBalanceError は残高不足でインクを消費できなかったことを表す。
type InsufficientBalanceError struct {
	Current  int
	Required int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: current=%d required=%d", e.Current, e.Required)
}

// uniqueViolation はPostgreSQLのunique_violationのSQLSTATE。
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
