package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridepool/internal/handler"
	"ridepool/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	AuthHandler    *handler.AuthHandler
	TripHandler    *handler.TripHandler
	BookingHandler *handler.BookingHandler
	ProfileHandler *handler.ProfileHandler
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	JWTSecret      string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.Idempotency(deps.RedisClient))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	requireAuth := middleware.RequireAuth(deps.JWTSecret)

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Auth routes.
		auth := v1.Group("/auth")
		{
			auth.POST("/register", deps.AuthHandler.Register)
			auth.GET("/verify", deps.AuthHandler.Verify)
			auth.POST("/login", deps.AuthHandler.Login)
		}

		// Trip routes. Search and detail are public; everything that
		// mutates inventory requires a bearer token.
		trips := v1.Group("/trips")
		{
			trips.GET("/search", deps.TripHandler.Search)
			trips.GET("/mine", requireAuth, deps.TripHandler.ListMine)
			trips.GET("/:id", deps.TripHandler.Get)
			trips.POST("", requireAuth, deps.TripHandler.Offer)
			trips.POST("/:id/book", requireAuth, deps.BookingHandler.Book)
			trips.POST("/:id/cancel", requireAuth, deps.TripHandler.Cancel)
			trips.POST("/:id/complete", requireAuth, deps.TripHandler.Complete)
		}

		// Booking routes.
		bookings := v1.Group("/bookings", requireAuth)
		{
			bookings.GET("", deps.BookingHandler.List)
			bookings.POST("/:id/cancel", deps.BookingHandler.Cancel)
		}

		// Profile.
		v1.GET("/profile", requireAuth, deps.ProfileHandler.Get)
	}

	return router
}
