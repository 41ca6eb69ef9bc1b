package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/inkstudio/internal/auth"
	"github.com/hitoshi/inkstudio/internal/catalog"
	"github.com/hitoshi/inkstudio/internal/config"
	"github.com/hitoshi/inkstudio/internal/database"
	"github.com/hitoshi/inkstudio/internal/handler"
	"github.com/hitoshi/inkstudio/internal/ink"
	"github.com/hitoshi/inkstudio/internal/logger"
	"github.com/hitoshi/inkstudio/internal/mail"
	"github.com/hitoshi/inkstudio/internal/metrics"
	"github.com/hitoshi/inkstudio/internal/middleware"
	"github.com/hitoshi/inkstudio/internal/repository"
	"github.com/hitoshi/inkstudio/internal/security"
	"github.com/hitoshi/inkstudio/internal/worker/cleanup"
)

const (
	shutdownTimeout = 30 * time.Second
	dbPingTimeout   = 5 * time.Second

	// otpRateWindow はRATE_LIMIT_OTP_PER_EMAILの集計期間。
	otpRateWindow = 10 * time.Minute
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv, err := newServer(cfg, db)
	if err != nil {
		return err
	}
	defer srv.rateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 送信中のウェルカムメールを待つ
	srv.accounts.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// server はHTTPサーバーの構成要素。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	accounts    *auth.Accounts
}

// newServer はリポジトリ、サービス、ルーターを組み立てる。
// DBへの問い合わせは行わないため、接続前の*sql.DBでも構築できる。
func newServer(cfg *config.Config, db *sql.DB) (*server, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo()
	userRepo := repository.NewPostgresUserRepo(db, profileRepo)
	identityRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	otpRepo := repository.NewPostgresOTPRepo(db)
	inkRepo := repository.NewPostgresInkRepo(db, profileRepo, cfg.DefaultTokenGrant)
	exampleRepo := repository.NewPostgresExampleRepo(db)

	// 3. セキュリティサービスの初期化
	sanitizer := security.NewTextSanitizer()
	urlGuard := security.NewURLGuard()

	// 4. メール
	mailer, err := newMailer(cfg)
	if err != nil {
		return nil, err
	}

	// 5. ドメインサービスの初期化
	accounts := auth.NewAccounts(userRepo, mailer, collector, auth.AccountsConfig{
		DefaultTokenGrant: cfg.DefaultTokenGrant,
	})
	sessionService := auth.NewSessionService(sessionRepo, userRepo, collector, cfg.SessionTTL)
	otpService := auth.NewOTPService(otpRepo, userRepo, accounts, sessionService, mailer, collector, auth.OTPConfig{
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
		LogCodes:    cfg.IsDevelopment(),
	})

	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		HTTPClient:   urlGuard.NewSafeClient(cfg.OAuthTimeout),
	})
	authService := auth.NewService(oauthProvider, userRepo, identityRepo, accounts, sessionService, sanitizer, urlGuard)

	inkService := ink.NewService(inkRepo, sanitizer, collector)
	catalogService := catalog.NewService(exampleRepo)

	// 6. ルーターの構築
	clientIPResolver, err := middleware.NewClientIPResolver(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXY_CIDRS: %w", err)
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		SessionResolver:    sessionService,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		RateLimiter:        rateLimiter,
		AuthRateLimitPerIP: cfg.RateLimitAuthPerIP,
		ClientIPResolver:   clientIPResolver,

		OTPService:     otpService,
		OAuthService:   authService,
		SessionService: sessionService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure(),
			SessionMaxAge: cfg.SessionMaxAge(),
		},

		InkService:     inkService,
		ExampleService: catalogService,

		DB:      db,
		Metrics: metrics.Handler(registry),
	})

	return &server{
		handler:     router,
		rateLimiter: rateLimiter,
		accounts:    accounts,
	}, nil
}

// newMailer はSMTP設定があればSMTPMailerを、なければログ出力のみのMailerを返す。
// 本番環境ではSMTP_HOSTが必須のため、LogMailerになるのは開発環境のみ。
func newMailer(cfg *config.Config) (mail.Mailer, error) {
	if !cfg.SMTPEnabled() {
		slog.Warn("SMTP_HOST is not set; emails will be logged instead of sent")
		return mail.NewLogMailer(slog.Default()), nil
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:         cfg.SMTPHost,
		Port:         cfg.SMTPPort,
		Username:     cfg.SMTPUsername,
		Password:     cfg.SMTPPassword,
		Encryption:   cfg.SMTPEncryption,
		From:         cfg.SMTPFrom,
		Timeout:      cfg.SMTPTimeout,
		WelcomeGrant: cfg.DefaultTokenGrant,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure SMTP mailer: %w", err)
	}
	return mailer, nil
}

// rateLimiterConfig は設定値（req/min、回/10分）をトークンバケットの設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlc := middleware.DefaultRateLimiterConfig()
	rlc.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / time.Minute.Seconds())
	rlc.GeneralBurst = cfg.RateLimitGeneral
	rlc.OTPRate = rate.Limit(float64(cfg.RateLimitOTPPerEmail) / otpRateWindow.Seconds())
	rlc.OTPBurst = cfg.RateLimitOTPPerEmail
	return rlc
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れのOTPコードとセッションを定期的に削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	cleanupJob := cleanup.NewCleanupJob(
		repository.NewPostgresOTPRepo(db),
		repository.NewPostgresSessionRepo(db),
		slog.Default(),
	)
	cleanupJob.OTPRetention = cfg.OTPRetention

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("otp_retention", cfg.OTPRetention),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
