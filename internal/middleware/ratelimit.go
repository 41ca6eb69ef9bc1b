package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/httprate"
	"golang.org/x/time/rate"

	"github.com/hitoshi/inkstudio/internal/auth"
	"github.com/hitoshi/inkstudio/internal/model"
)

// MaxJSONBodyBytes はJSONリクエストボディの上限サイズ。
// ハンドラーのデコードとOTP送信のレート制限で同じ値を使う。
const MaxJSONBodyBytes = 16 << 10

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // 認証済みAPIのユーザーごとのレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // 認証済みAPIのバーストサイズ
	OTPRate         rate.Limit    // OTP送信のメールアドレスごとのレート（req/sec）。5/600
	OTPBurst        int           // OTP送信のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 認証済みAPI 120 req/min/user、OTP送信 5回/10分/メールアドレス。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		OTPRate:         rate.Limit(5.0 / 600.0),
		OTPBurst:        5,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのレートリミッターと最終アクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は同じレート設定を持つキー別リミッターの集合。
type limiterSet struct {
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
}

func newLimiterSet(r rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		rate:     r,
		burst:    burst,
		limiters: make(map[string]*keyedLimiter),
	}
}

// allow はキーのリミッターを取得または作成し、1トークン消費できるかを返す。
func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	kl, exists := s.limiters[key]
	if !exists {
		kl = &keyedLimiter{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.limiters[key] = kl
	}
	kl.lastAccess = time.Now()
	s.mu.Unlock()

	return kl.limiter.Allow()
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// evictIdle は最終アクセスからttl以上経過したエントリを削除する。
func (s *limiterSet) evictIdle(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はユーザーごと・メールアドレスごとのレート制限を管理する。
type RateLimiter struct {
	config RateLimiterConfig

	general *limiterSet
	otp     *limiterSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet(config.GeneralRate, config.GeneralBurst),
		otp:     newLimiterSet(config.OTPRate, config.OTPBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware は認証済みAPIのレート制限ミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !rl.general.allow(userID) {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OTPMiddleware はOTP送信のメールアドレスごとのレート制限ミドルウェアを返す。
// ボディのemailを正規化してキーにする。ボディは読み戻してハンドラーに渡す。
// emailを読み取れないリクエストはそのまま通し、ハンドラーの入力検証に任せる。
func (rl *RateLimiter) OTPMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email := peekEmail(r)
			if email == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.otp.allow(email) {
				writeRateLimitResponse(w, rl.config.OTPRate)
				slog.Warn("rate limit exceeded",
					slog.String("email", email),
					slog.String("limit_type", "otp_send"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されている認証済みAPIリミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// OTPLimiterCount は現在管理されているOTP送信リミッターのエントリ数を返す。
func (rl *RateLimiter) OTPLimiterCount() int {
	return rl.otp.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
// OTPはバケットが満タンに戻るまでの時間より短く保持すると制限が緩むため、その長さも考慮する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.evictIdle(now, ttl)
	rl.otp.evictIdle(now, max(ttl, refillDuration(rl.config.OTPRate, rl.config.OTPBurst)))
}

// refillDuration は空のバケットがburstまで補充される時間を返す。
func refillDuration(r rate.Limit, burst int) time.Duration {
	if r <= 0 {
		return 0
	}
	return time.Duration(float64(burst) / float64(r) * float64(time.Second))
}

// peekEmail はJSONボディのemailを正規化して返す。
// 読み取った分は未読の残りと連結して戻すため、ハンドラーは元のボディ全体を受け取る。
func peekEmail(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxJSONBodyBytes+1))
	r.Body = readCloser{
		Reader: io.MultiReader(bytes.NewReader(body), r.Body),
		Closer: r.Body,
	}
	if err != nil || len(body) > MaxJSONBodyBytes {
		return ""
	}

	var payload struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return auth.NormalizeEmail(payload.Email)
}

type readCloser struct {
	io.Reader
	io.Closer
}

// NewIPRateLimitMiddleware はクライアントIPごとの固定ウィンドウ制限ミドルウェアを返す。
// 認証エンドポイント全体に適用し、メールアドレスを変えながらの総当たりを抑える。
// resolverがnilの場合はTCP接続元のIPをキーにし、転送ヘッダーは一切参照しない。
func NewIPRateLimitMiddleware(requests int, window time.Duration, resolver *ClientIPResolver) func(next http.Handler) http.Handler {
	keyFunc := httprate.KeyByIP
	if resolver != nil {
		keyFunc = resolver.KeyFunc()
	}

	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			slog.Warn("rate limit exceeded",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("client_ip", resolver.Resolve(r)),
				slog.String("limit_type", "ip"),
			)
			if w.Header().Get("Retry-After") == "" {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(window.Seconds()))))
			}
			WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitExceededError())
		}),
	)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitExceededError())
}
