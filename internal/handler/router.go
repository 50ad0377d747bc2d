package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sociosync/internal/middleware"
	"github.com/hitoshi/sociosync/internal/roster"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Cache   *roster.Cache
	Gateway CrudGateway
	Feed    FeedStatus
	Logger  *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// MetricsHandler はnilの場合 /metrics を公開しない。
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → RateLimit
//
// /healthz と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	h := NewRosterHandler(deps.Cache, deps.Gateway, deps.Feed, deps.Logger)

	r.Get("/healthz", newHealthzHandler(deps.Feed))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/roster", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", h.GetRoster)

		// 書き込み系はバックエンドに委譲されるため専用のレート制限を重ねる
		r.With(deps.RateLimiter.WriteMiddleware()).Post("/", h.CreateMember)
		r.Route("/{id}", func(r chi.Router) {
			r.With(deps.RateLimiter.WriteMiddleware()).Patch("/", h.UpdateMember)
			r.With(deps.RateLimiter.WriteMiddleware()).Delete("/", h.DeleteMember)
		})
	})

	return r
}

// newHealthzHandler はヘルスチェックハンドラーを返す。
// プロセスの生存と現在の同期モードを報告する。
func newHealthzHandler(feed FeedStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"mode":   feed.Mode().String(),
		})
	}
}
