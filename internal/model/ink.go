package model

import "time"

// DefaultTokenGrant は新規ユーザーに付与されるインクの初期値。
const DefaultTokenGrant = 100

// TierFree は未課金ユーザーのティア。
const TierFree = "free"

// InkBalance は残高照会の結果を表す。
type InkBalance struct {
	Balance    int    `json:"balance"`
	Tier       string `json:"tier"`
	UsageToday int    `json:"usageToday"`
}

// InkDeduction はインク消費の結果を表す。
type InkDeduction struct {
	NewBalance int `json:"newBalance"`
	Deducted   int `json:"deducted"`
}

// InkTransaction はインク残高の増減履歴。
// Amountは消費なら負、付与なら正の値を取る。
type InkTransaction struct {
	ID           string
	UserID       string
	Amount       int
	Reason       string
	BalanceAfter int
	CreatedAt    time.Time
}
