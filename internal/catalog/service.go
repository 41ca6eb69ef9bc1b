// Package catalog はサンプル画像カタログのドメインロジックを提供する。
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/inkstudio/internal/model"
	"github.com/hitoshi/inkstudio/internal/repository"
)

const (
	// DefaultListLimit は一覧取得の既定件数。
	DefaultListLimit = 20
	// MaxListLimit は一覧取得の最大件数。
	MaxListLimit = 100

	// DefaultRandomCount はランダム取得の既定件数。
	DefaultRandomCount = 6
	// MaxRandomCount はランダム取得の最大件数。
	MaxRandomCount = 20

	// FeaturedLimit はおすすめ取得の件数。
	FeaturedLimit = 12

	maxStyleLength = 50
)

// ListResult は一覧取得の結果。
type ListResult struct {
	Examples []*model.Example `json:"examples"`
	Total    int              `json:"total"`
}

// Service はサンプル画像の閲覧を提供する。
// 認証不要のエンドポイントから呼ばれるため、RLSの対象テーブルには触れない。
type Service struct {
	repo repository.ExampleRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ExampleRepository) *Service {
	return &Service{repo: repo}
}

// List はフィルタ条件に一致するサンプルを返す。Limitが0の場合は既定件数を使う。
func (s *Service) List(ctx context.Context, filter model.ExampleFilter) (*ListResult, error) {
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}

	fields := map[string]string{}
	if filter.Limit < 1 || filter.Limit > MaxListLimit {
		fields["limit"] = fmt.Sprintf("must be between 1 and %d", MaxListLimit)
	}
	if filter.Offset < 0 {
		fields["offset"] = "must be 0 or greater"
	}
	if len(filter.Style) > maxStyleLength {
		fields["style"] = fmt.Sprintf("must be at most %d characters", maxStyleLength)
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	examples, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("サンプル一覧の取得に失敗しました: %w", err)
	}
	return &ListResult{Examples: examples, Total: total}, nil
}

// Random は無作為に選んだサンプルを返す。countが0の場合は既定件数を使う。
func (s *Service) Random(ctx context.Context, count int) ([]*model.Example, error) {
	if count == 0 {
		count = DefaultRandomCount
	}
	if count < 1 || count > MaxRandomCount {
		return nil, model.NewValidationError(map[string]string{
			"count": fmt.Sprintf("must be between 1 and %d", MaxRandomCount),
		})
	}

	examples, err := s.repo.Random(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("ランダムなサンプルの取得に失敗しました: %w", err)
	}
	return examples, nil
}

// Featured はおすすめのサンプルを返す。
func (s *Service) Featured(ctx context.Context) ([]*model.Example, error) {
	examples, err := s.repo.Featured(ctx, FeaturedLimit)
	if err != nil {
		return nil, fmt.Errorf("おすすめサンプルの取得に失敗しました: %w", err)
	}
	return examples, nil
}

// RecordView は閲覧数を1増やし、更新後の値を返す。
// IDがUUID形式でない場合も存在しない場合と同じくEXAMPLE_NOT_FOUNDを返す。
func (s *Service) RecordView(ctx context.Context, id string) (int, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, model.NewExampleNotFoundError(id)
	}

	views, err := s.repo.IncrementViews(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, model.NewExampleNotFoundError(id)
		}
		return 0, fmt.Errorf("閲覧数の更新に失敗しました: %w", err)
	}
	return views, nil
}
