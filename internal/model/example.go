package model

import "time"

// Example はギャラリーに表示するタトゥーデザインのサンプル画像。
type Example struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Prompt    string    `json:"prompt"`
	Style     string    `json:"style"`
	ImageURL  string    `json:"imageUrl"`
	Featured  bool      `json:"featured"`
	Views     int       `json:"views"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExampleFilter はサンプル一覧の絞り込み条件。
type ExampleFilter struct {
	Style  string
	Limit  int
	Offset int
}
