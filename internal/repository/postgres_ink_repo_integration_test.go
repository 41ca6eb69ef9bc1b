package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/inkstudio/internal/database"
	"github.com/hitoshi/inkstudio/internal/model"
)

// openIntegrationDB はTEST_DATABASE_URLのPostgreSQLに接続し、マイグレーションを適用する。
// 未設定または接続できない場合はテストをスキップする。
func openIntegrationDB(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	return db
}

// 同一ユーザーへの並行した消費で残高が負にならず、成功回数が残高分に収まることを検証する。
func TestPostgresInkRepo_ConcurrentDeductions(t *testing.T) {
	db := openIntegrationDB(t)
	ctx := context.Background()

	profiles := NewPostgresProfileRepo()
	users := NewPostgresUserRepo(db, profiles)
	ink := NewPostgresInkRepo(db, profiles, model.DefaultTokenGrant)

	user := &model.User{
		ID:     uuid.New().String(),
		Email:  "concurrent-" + uuid.New().String() + "@example.com",
		Role:   model.RoleUser,
		Tokens: 100,
	}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("ユーザー作成に失敗: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM users WHERE id = $1`, user.ID)
	})

	const workers = 10
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ink.Deduct(ctx, user.ID, 20, "generation")
			mu.Lock()
			defer mu.Unlock()
			var ie *InsufficientBalanceError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &ie):
				insufficient++
			default:
				t.Errorf("予期しないエラー: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 || insufficient != 5 {
		t.Errorf("成功=%d 残高不足=%d, want 5/5", succeeded, insufficient)
	}

	balance, err := ink.GetBalance(ctx, user.ID, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("GetBalance error: %v", err)
	}
	if balance.Balance != 0 {
		t.Errorf("最終残高 = %d, want 0", balance.Balance)
	}
	if balance.UsageToday != 100 {
		t.Errorf("当日消費量 = %d, want 100", balance.UsageToday)
	}
	if balance.Tier != model.TierFree {
		t.Errorf("tier = %q, want %q", balance.Tier, model.TierFree)
	}
}
