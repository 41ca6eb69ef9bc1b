// Package cleanup は失効した認証データの自動削除ジョブを提供する。
// 期限切れのOTPコードは保持期間（デフォルト24時間）を過ぎてから、
// 期限切れのセッションは即座に削除する。検証処理は期限をSQLで判定するため、
// このジョブが止まっていても認証の正しさには影響しない。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultOTPRetention は期限切れOTPコードを残しておく期間のデフォルト値。
const DefaultOTPRetention = 24 * time.Hour

// OTPPurger は期限切れOTPコードを削除するインターフェース。
// repository.OTPRepositoryが実装する。
type OTPPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionPurger は期限切れセッションを削除するインターフェース。
// repository.SessionRepositoryが実装する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は失効したOTPコードとセッションの削除ジョブ。
// 冪等な削除処理のみを行うため、複数のワーカーで同時に実行しても安全。
type CleanupJob struct {
	otps         OTPPurger
	sessions     SessionPurger
	logger       *slog.Logger
	OTPRetention time.Duration // 期限切れOTPコードの保持期間
	now          func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトのOTP保持期間は24時間。
func NewCleanupJob(otps OTPPurger, sessions SessionPurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		otps:         otps,
		sessions:     sessions,
		logger:       logger,
		OTPRetention: DefaultOTPRetention,
		now:          time.Now,
	}
}

// Run は期限切れのOTPコードとセッションを削除する。
// 一方の削除に失敗しても他方は実行し、両方のエラーをまとめて返す。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	var errs []error

	before := j.now().Add(-j.OTPRetention)
	otpCount, err := j.otps.DeleteExpired(ctx, before)
	if err != nil {
		j.logger.Error("OTPコードのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("otp_retention", j.OTPRetention),
		)
		errs = append(errs, fmt.Errorf("OTPコードの削除に失敗: %w", err))
	}

	sessionCount, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("セッションの削除に失敗: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_otp_codes", otpCount),
		slog.Int64("deleted_sessions", sessionCount),
		slog.Duration("otp_retention", j.OTPRetention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、以降intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。失敗はログに記録して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil && ctx.Err() == nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
