package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/avtodeleer/gooddrive/internal/middleware"
	"github.com/avtodeleer/gooddrive/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Pipeline       *middleware.Pipeline
	Logger         *slog.Logger
	StatusObserver middleware.StatusObserver
	TrustProxy     bool
	AllowedOrigins []string

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// カタログ
	Brands BrandStore
	Parts  PartFinder

	// SEO
	Feeds FeedGenerator

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP(TRUST_PROXY時) → Logging → Pipeline → Preflight → OriginCheck
//
// Pipelineはレート制限、識別、エラー分類、レスポンス装飾を受け持つ。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(deps.Pipeline.Middleware)
	r.Use(preflight)
	r.Use(middleware.NewOriginCheckMiddleware(deps.AllowedOrigins...))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	catalogHandler := NewCatalogHandler(deps.Brands, deps.Parts)
	seoHandler := NewSEOHandler(deps.Feeds)

	// 運用
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// SEO
	r.Method(http.MethodGet, "/sitemap.xml", middleware.Handle(seoHandler.Sitemap))
	r.Method(http.MethodGet, "/rss.xml", middleware.Handle(seoHandler.RSS))

	// 認証
	r.Route("/api/auth", func(r chi.Router) {
		r.Method(http.MethodPost, "/login", middleware.Handle(authHandler.Login))
		r.Method(http.MethodPost, "/logout", middleware.Handle(authHandler.Logout))
		r.Method(http.MethodGet, "/verify", middleware.Handle(authHandler.Me))
		r.Method(http.MethodGet, "/me", middleware.Handle(authHandler.Me))
	})

	// カタログ
	r.Method(http.MethodGet, "/api/brands", middleware.Handle(catalogHandler.ListBrands))
	r.Method(http.MethodGet, "/api/parts", middleware.Handle(catalogHandler.ListParts))
	r.Method(http.MethodGet, "/api/parts/{id}", middleware.Handle(catalogHandler.GetPart))

	// 管理（ハンドラー内で管理者権限を確認する）
	r.Route("/api/admin", func(r chi.Router) {
		r.Method(http.MethodPost, "/brands", middleware.Handle(catalogHandler.CreateBrand))
		r.Method(http.MethodDelete, "/brands/{id}", middleware.Handle(catalogHandler.DeleteBrand))
	})

	r.NotFound(middleware.Handle(func(w http.ResponseWriter, r *http.Request) error {
		return model.NewNotFoundError("Route", "")
	}).ServeHTTP)

	return r
}

// preflight は/api/配下のOPTIONSリクエストに204で応答する。
// CORSヘッダーはパイプラインの装飾で付与される。
func preflight(next http.Handler) http.Handler {
	answer := middleware.PreflightHandler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions && strings.HasPrefix(r.URL.Path, "/api/") {
			answer.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
