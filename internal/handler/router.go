package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/diskuto-web/internal/metrics"
	"github.com/hitoshi/diskuto-web/internal/middleware"
	"github.com/hitoshi/diskuto-web/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// コンテンツ
	Content ContentService
	APIURL  string

	// ミドルウェア依存
	Logger       *slog.Logger
	Metrics      metrics.MetricsCollector
	Gatherer     prometheus.Gatherer // nilの場合は/metricsを公開しない
	RateLimiter  *middleware.RateLimiter
	CookieSecure bool
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Viewer → Logging → Recovery → SecurityHeaders → NotABot → RateLimit
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var recorder middleware.StatusRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewViewerMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, recorder))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	pages := NewPageHandler(deps.Content, logger)
	atom := NewAtomHandler(deps.Content, security.NewSanitizer(), logger)
	static := NewStaticHandler(deps.APIURL)

	r.NotFound(static.NotFound)

	// --- 運用エンドポイント ---
	r.Get("/health", static.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- サイト ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewNotABotMiddleware(deps.CookieSecure))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/", pages.Root)
		r.Get("/home", pages.Home)
		r.Get("/robots.txt", static.Robots)
		r.Get("/diskuto-web/info", static.Info)
		r.Get("/x/item", pages.ItemFragment)

		r.Get("/u/{uid}", static.AddTrailingSlash)
		r.Get("/u/{uid}/", pages.UserPosts)
		r.Get("/u/{uid}/feed", pages.UserFeed)
		r.Get("/u/{uid}/feed.atom", atom.UserPosts)
		r.Get("/u/{uid}/profile", pages.Profile)
		r.Get("/u/{uid}/icon.png", static.Icon)

		r.Get("/u/{uid}/i/{sig}", static.AddTrailingSlash)
		r.Get("/u/{uid}/i/{sig}/", pages.Item)
		r.Get("/u/{uid}/i/{sig}/files/{name}", static.File)
	})

	return r
}
