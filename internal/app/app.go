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

	"github.com/avtodeleer/gooddrive/internal/auth"
	"github.com/avtodeleer/gooddrive/internal/catalog"
	"github.com/avtodeleer/gooddrive/internal/config"
	"github.com/avtodeleer/gooddrive/internal/database"
	"github.com/avtodeleer/gooddrive/internal/handler"
	"github.com/avtodeleer/gooddrive/internal/logger"
	"github.com/avtodeleer/gooddrive/internal/metrics"
	"github.com/avtodeleer/gooddrive/internal/middleware"
	"github.com/avtodeleer/gooddrive/internal/ratelimit"
	"github.com/avtodeleer/gooddrive/internal/repository"
	"github.com/avtodeleer/gooddrive/internal/security"
	"github.com/avtodeleer/gooddrive/internal/seo"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envがあれば環境変数に取り込む
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel, slog.LevelInfo))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandImport:
		if len(args) < 2 || args[1] == "" {
			return errors.New("import requires a CSV file path")
		}
		return runImport(ctx, cfg, args[1])
	case CommandCreateAdmin:
		return runCreateAdmin(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. レート制限
	limiter, closeStore, err := newLimiter(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer closeStore()
	limiter.StartSweeper(ctx)
	defer limiter.Stop()

	// 4. ルーターの構築
	router := newRouter(cfg, db, limiter, collector, reg)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err := <-listenErr:
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

	slog.Info("API server stopped gracefully")
	return nil
}

// newLimiter は設定に従ってレート制限を構築する。
// REDIS_URLが設定されていればRedis、なければプロセス内メモリにレコードを保持する。
// 返り値の関数でストアを閉じる。
func newLimiter(ctx context.Context, cfg *config.Config, collector *metrics.Collector) (*ratelimit.Limiter, func(), error) {
	var store ratelimit.Store
	closeStore := func() {}

	if cfg.RedisURL != "" {
		rs, err := ratelimit.OpenRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = rs
		closeStore = func() {
			if err := rs.Close(); err != nil {
				slog.Warn("failed to close redis store", slog.String("error", err.Error()))
			}
		}
		slog.Info("rate limit store: redis")
	} else {
		ms := ratelimit.NewMemoryStore(0)
		collector.RegisterTrackedKeys(ms.Len)
		store = ms
		slog.Info("rate limit store: memory")
	}

	limiter := ratelimit.New(store,
		ratelimit.WithLogger(slog.Default()),
		ratelimit.WithSweepInterval(cfg.RateLimitSweepInterval),
		ratelimit.WithObserver(collector),
	)
	for scope, rule := range cfg.RateLimits() {
		if err := limiter.Configure(scope, rule.Points, rule.Window); err != nil {
			closeStore()
			return nil, nil, fmt.Errorf("invalid rate limit for %s: %w", scope, err)
		}
		slog.Info("rate limit configured",
			slog.String("scope", scope),
			slog.Int("points", rule.Points),
			slog.Duration("window", rule.Window),
		)
	}

	return limiter, closeStore, nil
}

// newRouter はリポジトリ、認証、パイプライン、ハンドラーをワイヤリングしたルーターを返す。
func newRouter(cfg *config.Config, db *sql.DB, limiter *ratelimit.Limiter, collector *metrics.Collector, gatherer prometheus.Gatherer) http.Handler {
	// 1. リポジトリの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	brandRepo := repository.NewPostgresBrandRepo(db)
	partRepo := repository.NewPostgresPartRepo(db)

	// 2. 認証
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiresIn)
	authService := auth.NewService(accountRepo, tokens)
	resolver := auth.NewSessionResolver(tokens, accountRepo, cfg.SessionLookupTimeout,
		auth.WithResolverLogger(slog.Default()),
		auth.WithOutcomeObserver(collector),
	)

	// 3. パイプライン
	pipeline := middleware.NewPipeline(middleware.PipelineConfig{
		Limiter:    limiter,
		Resolver:   resolver,
		Production: cfg.IsProduction(),
		CORSOrigin: cfg.CORSAllowedOrigin,
		Observer:   collector,
		Logger:     slog.Default(),
	})

	// 4. SEO
	generator := seo.NewGenerator(cfg.BaseURL, brandRepo, partRepo, security.NewContentSanitizer())

	return handler.NewRouter(&handler.RouterDeps{
		Pipeline:       pipeline,
		Logger:         slog.Default(),
		StatusObserver: collector,
		TrustProxy:     cfg.TrustProxy,
		AllowedOrigins: []string{cfg.BaseURL, cfg.CORSAllowedOrigin},

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
			TokenTTL:     tokens.TTL(),
		},

		Brands: brandRepo,
		Parts:  partRepo,
		Feeds:  generator,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(gatherer),
	})
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	state, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("previous_version", uint64(state.Previous)),
		slog.Uint64("version", uint64(state.Version)),
		slog.Bool("changed", state.Changed()),
	)
	return nil
}

// runImport はカタログCSVを取り込む。
// PUSHGATEWAY_URLが設定されていれば取り込み件数のメトリクスを送信する。
func runImport(ctx context.Context, cfg *config.Config, path string) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	importer := catalog.NewImporter(
		repository.NewPostgresBrandRepo(db),
		repository.NewPostgresPartRepo(db),
		cfg.ImportRate,
		catalog.WithLogger(slog.Default()),
		catalog.WithObserver(collector),
	)

	slog.Info("catalog import starting",
		slog.String("file", path),
		slog.Int("rows_per_second", cfg.ImportRate),
	)
	stats, importErr := importer.ImportFile(ctx, path)

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(ctx, cfg.PushgatewayURL, "gooddrive_import", reg); err != nil {
			slog.Warn("failed to push import metrics", slog.String("error", err.Error()))
		}
	}

	if importErr != nil {
		return fmt.Errorf("import failed after %d rows: %w", stats.Total(), importErr)
	}
	return nil
}

// runCreateAdmin はADMIN_EMAIL/ADMIN_PASSWORDから管理者アカウントを作成または再有効化する。
func runCreateAdmin(ctx context.Context, cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set")
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	service := auth.NewService(
		repository.NewPostgresAccountRepo(db),
		auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiresIn),
	)
	if _, err := service.CreateAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("create admin failed: %w", err)
	}
	return nil
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
