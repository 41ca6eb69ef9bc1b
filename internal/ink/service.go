// Package ink はインク残高台帳のドメインロジックを提供する。
package ink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/inkstudio/internal/metrics"
	"github.com/hitoshi/inkstudio/internal/model"
	"github.com/hitoshi/inkstudio/internal/repository"
	"github.com/hitoshi/inkstudio/internal/security"
)

const (
	// DefaultReason は消費理由が空の場合に記録する値。
	DefaultReason = "generation"

	// maxReasonRunes は消費理由の最大文字数。
	maxReasonRunes = 200
)

// 拒否理由のメトリクスラベル。
const (
	rejectInvalidAmount = "invalid_amount"
	rejectInsufficient  = "insufficient_balance"
	rejectUserNotFound  = "user_not_found"
)

// Service はインク残高の照会と消費を提供する。
type Service struct {
	repo      repository.InkRepository
	sanitizer security.TextSanitizerService
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.InkRepository,
	sanitizer security.TextSanitizerService,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   collector,
		now:       time.Now,
	}
}

// GetBalance は残高、ティア、当日（UTC）の消費量を返す。
func (s *Service) GetBalance(ctx context.Context, userID string) (*model.InkBalance, error) {
	balance, err := s.repo.GetBalance(ctx, userID, startOfDay(s.now()))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("残高の取得に失敗しました: %w", err)
	}
	return balance, nil
}

// Deduct は残高からamountを差し引く。
// 残高不足の場合は現在残高と必要量を含むINSUFFICIENT_BALANCEを返し、残高は変更しない。
func (s *Service) Deduct(ctx context.Context, userID string, amount int, reason string) (*model.InkDeduction, error) {
	if amount <= 0 {
		s.metrics.RecordInkDeductRejected(rejectInvalidAmount)
		return nil, model.NewInvalidAmountError(amount)
	}

	reason = s.sanitizer.Clean(reason, maxReasonRunes)
	if reason == "" {
		reason = DefaultReason
	}

	result, err := s.repo.Deduct(ctx, userID, amount, reason)
	if err != nil {
		var insufficient *repository.InsufficientBalanceError
		switch {
		case errors.As(err, &insufficient):
			s.metrics.RecordInkDeductRejected(rejectInsufficient)
			slog.Info("ink deduction rejected",
				slog.String("user_id", userID),
				slog.Int("current", insufficient.Current),
				slog.Int("required", insufficient.Required),
			)
			return nil, model.NewInsufficientBalanceError(insufficient.Current, insufficient.Required)
		case errors.Is(err, repository.ErrNotFound):
			s.metrics.RecordInkDeductRejected(rejectUserNotFound)
			return nil, model.NewUserNotFoundError()
		default:
			return nil, fmt.Errorf("インクの消費に失敗しました: %w", err)
		}
	}

	s.metrics.RecordInkDeducted(result.Deducted)
	slog.Info("ink deducted",
		slog.String("user_id", userID),
		slog.Int("amount", result.Deducted),
		slog.Int("new_balance", result.NewBalance),
		slog.String("reason", reason),
	)
	return result, nil
}

// startOfDay はtをUTCに変換した日の0時を返す。
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
