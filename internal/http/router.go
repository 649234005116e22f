// Package httpapi mounts the middleware chain and the CampusTrace routes on a
// gin engine.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-campustrace-backend/internal/config"
	_ "github.com/tbourn/go-campustrace-backend/internal/docs"
	"github.com/tbourn/go-campustrace-backend/internal/http/handlers"
	"github.com/tbourn/go-campustrace-backend/internal/http/middleware"
	"github.com/tbourn/go-campustrace-backend/internal/repo"
)

// multipartOverhead is allowed on top of MaxUploadBytes for form fields
// and part headers.
const multipartOverhead = 1 << 20

// idempotencyStore backs middleware.Idempotency and the handlers' recorder
// with the idempotency table.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func (s idempotencyStore) Lookup(ctx context.Context, userID, scope, key string, now time.Time) (string, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.ResourceID, true, nil
}

// Record ignores duplicates: a concurrent retry already stored the key.
func (s idempotencyStore) Record(ctx context.Context, userID, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// RegisterRoutes installs the middleware chain and every endpoint.
//
// Order: tracing, request id, access log, recovery, body limit, gzip,
// metrics, CORS and security headers globally; then identity, idempotency
// and rate limiting on the API group, so limits are keyed by user.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, svc handlers.Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(middleware.NewRedactor(middleware.RedactOptions{})))
	r.Use(middleware.Recovery())
	r.Use(limitBody(cfg.MaxUploadBytes + multipartOverhead))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.Metrics())
	r.Use(cors.New(corsConfig(cfg.CORS.AllowedOrigins)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	store := idempotencyStore{db: db, ttl: cfg.IdempotencyTTL}
	if svc.Idempotency == nil {
		svc.Idempotency = store
	}
	h := handlers.New(svc, handlers.Options{
		MatchThreshold:       cfg.Match.Threshold,
		MatchLimit:           cfg.Match.Limit,
		MatchTextWeight:      cfg.Match.TextWeight,
		MatchImageWeight:     cfg.Match.ImageWeight,
		ImageSearchThreshold: cfg.Match.ImageSearchThreshold,
		ImageSearchLimit:     cfg.Match.ImageSearchLimit,
		MaxUploadBytes:       cfg.MaxUploadBytes,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Auth(middleware.AuthOptions{
		Secret:        []byte(cfg.JWTSecret),
		DefaultTenant: cfg.DefaultTenant,
	}))
	api.Use(middleware.Idempotency(middleware.IdempotencyOptions{MaxLen: 200}, store.Lookup))
	api.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIdentity()).Handler())
	{
		api.POST("/items", h.CreateItem)
		api.GET("/items", h.ListItems)
		api.GET("/items/mine", h.ListMyItems)
		api.POST("/items/image-search", h.SearchByImage)
		api.GET("/items/:id", h.GetItem)
		api.GET("/items/:id/matches", h.FindMatches)
		api.POST("/items/:id/claims", h.SubmitClaim)
		api.GET("/items/:id/claims", h.ListClaims)
		api.POST("/items/:id/recovered", h.MarkRecovered)

		api.POST("/claims/:id/respond", h.RespondClaim)

		api.POST("/handover/items/:id/start", h.StartHandover)
		api.POST("/handover/items/:id/complete", h.CompleteHandover)
		api.POST("/handover/items/:id/thank-you", h.SendThankYou)

		api.GET("/users/:id/thank-you-notes", h.ListThankYouNotes)
		api.GET("/users/:id/badges", h.ListBadges)

		api.POST("/conversations", h.OpenConversation)
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:id/messages", h.ListMessages)
		api.POST("/conversations/:id/messages", h.SendMessage)

		api.GET("/notifications", h.ListNotifications)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)
		api.POST("/notifications/read-all", h.MarkAllNotificationsRead)
		api.POST("/push-tokens", h.RegisterPushToken)
	}

	admin := api.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.POST("/items/:id/moderation", h.ModerateItem)
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
			middleware.HeaderUserID, middleware.HeaderTenantID, middleware.HeaderRole,
			middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{"X-Request-ID", "ETag", middleware.HeaderIdempotencyReplayed},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cc
}

// limitBody caps request bodies; reads past maxBytes fail with
// *http.MaxBytesError.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
