// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, authentication, logging/redaction, panic
// recovery, compression, metrics, CORS, security headers, idempotency, and
// rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → auth → logging → recovery)
//   - Deterministic router setup; infrastructure is injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-social-backend/docs"
	"github.com/tbourn/go-social-backend/internal/auth"
	"github.com/tbourn/go-social-backend/internal/config"
	"github.com/tbourn/go-social-backend/internal/http/handlers"
	"github.com/tbourn/go-social-backend/internal/http/middleware"
	"github.com/tbourn/go-social-backend/internal/realtime"
	"github.com/tbourn/go-social-backend/internal/repo"
	"github.com/tbourn/go-social-backend/internal/services"
	"github.com/tbourn/go-social-backend/internal/storage"
)

// Infra carries the process-wide dependencies built in main.
type Infra struct {
	Store  storage.ObjectStore
	Hub    *realtime.Hub // nil disables publishing and the realtime route
	Tokens *auth.Tokens
}

// uploadSlack covers multipart framing around the image bytes.
const uploadSlack = 1 << 20

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), authentication,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the versioned API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Authenticate: resolve the bearer token (optional per route)
//  4. RedactingLogger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Gzip (skips /metrics and the WebSocket route)
//  8. Metrics
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
//  11. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, infra Infra, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath
	if apiBase == "/" {
		apiBase = ""
	}

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Bearer token → user id (RequireAuth enforces it per group)
	var verifier middleware.TokenVerifier
	if infra.Tokens != nil {
		verifier = infra.Tokens
	}
	r.Use(middleware.Authenticate(verifier))

	// 4) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Body size limit; image uploads get a larger cap
	uploadMax := cfg.Limits.MaxImageBytes + uploadSlack
	r.Use(limitBody(cfg.MaxBodyBytes, uploadMax,
		apiBase+"/media/posts",
		apiBase+"/profile/images/:kind",
	))

	// 7) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/metrics", apiBase + "/realtime"}),
	))

	// 8) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 9) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 10) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 11) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After", middleware.HeaderIdempotencyReplayed}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// ACAO: * even without an Origin header (simple health checks)
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:     cfg.Security.EnableHSTS,
		HSTSMaxAge:     cfg.Security.HSTSMaxAge,
		PrivateNoStore: true,
		EnablePolicy:   true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if cfg.Storage.Driver == "local" && cfg.Storage.LocalDir != "" {
		r.Static("/media", cfg.Storage.LocalDir)
	}

	h := handlers.New(buildDeps(db, infra, cfg))

	api := groupWithPrefix(r, apiBase)
	{
		// Session
		api.POST("/auth/register", h.Register)
		api.POST("/auth/login", h.Login)
		api.POST("/auth/refresh", h.Refresh)

		// Realtime authenticates itself (header or ?token=)
		if infra.Hub != nil {
			api.GET("/realtime", h.Realtime)
		}
	}

	p := api.Group("", middleware.RequireAuth())
	{
		p.POST("/auth/logout", h.Logout)
		p.GET("/auth/me", h.Me)

		// Profiles and follows
		p.GET("/profiles/:username", h.GetProfile)
		p.GET("/profiles/:username/followers", h.ListFollowers)
		p.GET("/profiles/:username/following", h.ListFollowing)
		p.POST("/profiles/:username/follow", h.ToggleFollow)
		p.PATCH("/profile", h.UpdateProfile)
		p.PUT("/profile/images/:kind", h.UploadProfileImage)

		// Posts, likes and comments
		p.GET("/posts", h.ListPosts)
		p.POST("/posts", h.CreatePost)
		p.GET("/posts/:id", h.GetPost)
		p.DELETE("/posts/:id", h.DeletePost)
		p.POST("/posts/:id/like", h.ToggleLike)
		p.GET("/posts/:id/comments", h.ListComments)
		p.POST("/posts/:id/comments", h.CreateComment)
		p.DELETE("/comments/:id", h.DeleteComment)
		p.POST("/media/posts", h.UploadPostImage)

		// Direct messages
		p.GET("/messages/conversations", h.ListConversations)
		p.GET("/messages/unread_count", h.UnreadMessages)
		p.GET("/messages/:user_id", h.GetThread)
		p.POST("/messages/:user_id", h.SendMessage)

		// Notifications
		p.GET("/notifications", h.ListNotifications)
		p.GET("/notifications/unread_count", h.UnreadNotifications)
		p.POST("/notifications/read", h.MarkNotificationsRead)

		p.GET("/search", h.Search)
	}
}

// buildDeps assembles the services behind the handlers.
func buildDeps(db *gorm.DB, infra Infra, cfg config.Config) handlers.Deps {
	// a nil *Hub must not become a non-nil interface
	var pub services.Publisher
	if infra.Hub != nil {
		pub = infra.Hub
	}

	notes := &services.NotificationService{DB: db, Publisher: pub}
	d := handlers.Deps{
		Auth: services.NewAuthService(db, infra.Tokens, cfg.Auth.RefreshTokenTTL, cfg.Auth.BcryptCost),
		Profiles: &services.ProfileService{
			DB: db, Store: infra.Store, Publisher: pub,
			MaxImageBytes: cfg.Limits.MaxImageBytes,
		},
		Posts: &services.PostService{
			DB: db, Store: infra.Store, Publisher: pub, Notifications: notes,
			MaxPostRunes: cfg.Limits.MaxPostRunes, MaxImageBytes: cfg.Limits.MaxImageBytes,
		},
		Comments: &services.CommentService{
			DB: db, Publisher: pub, Notifications: notes,
			MaxCommentRunes: cfg.Limits.MaxCommentRunes,
		},
		Follows:       &services.FollowService{DB: db, Publisher: pub, Notifications: notes},
		Messages:      &services.MessageService{DB: db, Publisher: pub, MaxMessageRunes: cfg.Limits.MaxMessageRunes},
		Notifications: notes,
		Search:        &services.SearchService{DB: db},
		Idempotency:   handlers.GormIdempotency{DB: db, TTL: cfg.IdempotencyTTL},
		Hub:           infra.Hub,
		Realtime: realtime.SessionOptions{
			Buffer: cfg.Realtime.Buffer,
			RPS:    cfg.Realtime.ClientRPS,
		},
		OriginPatterns: originPatterns(cfg.CORS.AllowedOrigins),
		MaxUploadBytes: cfg.Limits.MaxImageBytes + uploadSlack,
	}
	// a nil *auth.Tokens must not become a non-nil interface either
	if infra.Tokens != nil {
		d.Tokens = infra.Tokens
	}
	return d
}

// originPatterns converts CORS origins ("https://app.example.com") into the
// host patterns the WebSocket handshake checks.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader. Routes listed in uploadRoutes (matched
// against the registered pattern) get uploadMax instead. Requests exceeding
// the cap cause downstream body reads to error.
func limitBody(maxBytes, uploadMax int64, uploadRoutes ...string) gin.HandlerFunc {
	uploads := make(map[string]struct{}, len(uploadRoutes))
	for _, p := range uploadRoutes {
		uploads[p] = struct{}{}
	}
	return func(c *gin.Context) {
		limit := maxBytes
		if _, ok := uploads[c.FullPath()]; ok {
			limit = uploadMax
		}
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
