package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/inkstudio/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	// AuthRateLimitPerIP は/api/auth配下の1分あたりのIP単位上限。0以下で無効。
	AuthRateLimitPerIP int
	// ClientIPResolver はIP単位の制限に使うクライアントIPを決める。nilならTCP接続元のIP。
	ClientIPResolver *middleware.ClientIPResolver

	// 認証
	OTPService     OTPServiceInterface
	OAuthService   OAuthServiceInterface
	SessionService SessionServiceInterface
	AuthConfig     AuthHandlerConfig

	// インク
	InkService InkServiceInterface

	// サンプル
	ExampleService ExampleServiceInterface

	// 運用
	DB      Pinger
	Metrics http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → CORS → CSRF
//
// 認証が必要なルートはさらに Session → RateLimit(General) を通る。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.OTPService, deps.OAuthService, deps.SessionService, deps.AuthConfig)
	inkHandler := NewInkHandler(deps.InkService)
	exampleHandler := NewExampleHandler(deps.ExampleService)
	healthHandler := NewHealthHandler(deps.DB)

	requireSession := middleware.NewSessionMiddleware(deps.SessionResolver)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	r.Get("/api/health", healthHandler.Health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// --- 認証 ---
	r.Route("/api/auth", func(r chi.Router) {
		if deps.AuthRateLimitPerIP > 0 {
			r.Use(middleware.NewIPRateLimitMiddleware(deps.AuthRateLimitPerIP, time.Minute, deps.ClientIPResolver))
		}

		// POST /api/auth/otp/send - メールアドレス単位のレート制限を追加
		r.With(deps.RateLimiter.OTPMiddleware()).Post("/otp/send", authHandler.SendOTP)
		r.Post("/otp/verify", authHandler.VerifyOTP)

		r.Get("/google/url", authHandler.GoogleURL)
		r.Post("/google/callback", authHandler.GoogleCallback)

		r.Post("/signout", authHandler.Signout)
		r.With(requireSession).Get("/session", authHandler.Session)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Route("/api/ink", func(r chi.Router) {
		r.Use(requireSession)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/balance", inkHandler.Balance)
		r.Post("/deduct", inkHandler.Deduct)
	})

	// --- サンプル（認証不要） ---
	r.Route("/api/examples", func(r chi.Router) {
		r.Get("/", exampleHandler.List)
		r.Get("/random", exampleHandler.Random)
		r.Get("/featured", exampleHandler.Featured)
		r.Post("/{id}/view", exampleHandler.RecordView)
	})

	return r
}
