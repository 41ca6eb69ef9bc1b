package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/inkstudio/internal/model"
)

const exampleColumns = `id, title, prompt, style, image_url, featured, views, created_at`

// PostgresExampleRepo はPostgreSQLを使用したサンプル画像リポジトリ。
type PostgresExampleRepo struct {
	db *sql.DB
}

// NewPostgresExampleRepo はPostgresExampleRepoを生成する。
func NewPostgresExampleRepo(db *sql.DB) *PostgresExampleRepo {
	return &PostgresExampleRepo{db: db}
}

// List はフィルタ条件に一致するサンプルを新しい順に返す。
// Styleが空の場合は全スタイルを対象にする。
func (r *PostgresExampleRepo) List(ctx context.Context, filter model.ExampleFilter) ([]*model.Example, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM examples WHERE ($1 = '' OR style = $1)`,
		filter.Style,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count examples: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+exampleColumns+`
		 FROM examples
		 WHERE ($1 = '' OR style = $1)
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		filter.Style, filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list examples: %w", err)
	}
	defer rows.Close()

	examples, err := scanExamples(rows)
	if err != nil {
		return nil, 0, err
	}
	return examples, total, nil
}

// Random は無作為に選んだn件を返す。
func (r *PostgresExampleRepo) Random(ctx context.Context, n int) ([]*model.Example, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+exampleColumns+` FROM examples ORDER BY random() LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select random examples: %w", err)
	}
	defer rows.Close()

	return scanExamples(rows)
}

// Featured はおすすめのサンプルを新しい順に最大limit件返す。
func (r *PostgresExampleRepo) Featured(ctx context.Context, limit int) ([]*model.Example, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+exampleColumns+`
		 FROM examples
		 WHERE featured = true
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured examples: %w", err)
	}
	defer rows.Close()

	return scanExamples(rows)
}

// IncrementViews は閲覧数を1増やし、更新後の値を返す。
func (r *PostgresExampleRepo) IncrementViews(ctx context.Context, id string) (int, error) {
	var views int
	err := r.db.QueryRowContext(ctx,
		`UPDATE examples SET views = views + 1 WHERE id = $1 RETURNING views`,
		id,
	).Scan(&views)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment views: %w", err)
	}
	return views, nil
}

func scanExamples(rows *sql.Rows) ([]*model.Example, error) {
	examples := []*model.Example{}
	for rows.Next() {
		e := &model.Example{}
		if err := rows.Scan(
			&e.ID, &e.Title, &e.Prompt, &e.Style, &e.ImageURL,
			&e.Featured, &e.Views, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan example: %w", err)
		}
		examples = append(examples, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate examples: %w", err)
	}
	return examples, nil
}

// compile-time interface check
var _ ExampleRepository = (*PostgresExampleRepo)(nil)
