package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/litreview/internal/metrics"
	"github.com/hitoshi/litreview/internal/middleware"
)

// HealthChecker はDB疎通確認のためのインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	RelationshipService RelationshipServiceInterface
	TicketService       TicketServiceInterface
	FeedBuilder         FeedBuilder
	MediaService        MediaServiceInterface
	UserService         UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → Metrics → SecurityHeaders → CORS
//	認証が必要なルート: Session → CSRF → RateLimit(General)
//	フォロー・ブロックの変更: さらにRateLimit(Relationship)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	relHandler := NewRelationshipHandler(deps.RelationshipService)
	ticketHandler := NewTicketHandler(deps.TicketService)
	feedHandler := NewFeedHandler(deps.FeedBuilder)
	mediaHandler := NewMediaHandler(deps.MediaService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// サインアップ・ログインはセッションが無いためCSRFのみ適用する
	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Post("/signup", authHandler.SignUp)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		relLimit := deps.RateLimiter.RelationshipMiddleware()

		r.Get("/media/{id}", mediaHandler.Serve)

		r.Route("/api", func(r chi.Router) {
			r.Get("/account", userHandler.Profile)
			r.Put("/account/password", authHandler.ChangePassword)
			r.Put("/account/photo", userHandler.SetProfilePhoto)

			r.Get("/feed", feedHandler.GetFeed)
			r.Get("/posts", ticketHandler.ListPosts)

			// フォロー・ブロック
			r.Get("/relationships", relHandler.Overview)
			r.Get("/blocks", relHandler.ListBlocked)
			r.With(relLimit).Post("/follows", relHandler.FollowByUsername)

			r.Route("/users", func(r chi.Router) {
				r.Delete("/me", userHandler.Withdraw)
				r.Route("/{id}", func(r chi.Router) {
					r.Use(relLimit)
					r.Post("/follow", relHandler.Follow)
					r.Delete("/follow", relHandler.Unfollow)
					r.Post("/block", relHandler.Block)
					r.Delete("/block", relHandler.Unblock)
				})
			})

			// チケット・レビュー
			r.Route("/tickets", func(r chi.Router) {
				r.Post("/", ticketHandler.CreateTicket)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", ticketHandler.GetTicket)
					r.Put("/", ticketHandler.UpdateTicket)
					r.Delete("/", ticketHandler.DeleteTicket)
					r.Post("/reviews", ticketHandler.CreateReview)
				})
			})
			r.Route("/reviews", func(r chi.Router) {
				r.Post("/", ticketHandler.CreateTicketWithReview)
				r.Put("/{id}", ticketHandler.UpdateReview)
				r.Delete("/{id}", ticketHandler.DeleteReview)
			})

			// カバー画像・プロフィール画像
			r.Post("/media", mediaHandler.Upload)
			r.Post("/media/import", mediaHandler.Import)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
