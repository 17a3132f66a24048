package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/carrierdesk/backend/internal/config"
	"github.com/carrierdesk/backend/internal/db"
	"github.com/carrierdesk/backend/internal/http/handlers"
	"github.com/carrierdesk/backend/internal/http/middleware"
	"github.com/carrierdesk/backend/internal/service"

	_ "github.com/carrierdesk/backend/docs"
)

func Router(cfg config.Config, store *db.Store, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:     store,
		Analytics: &service.AnalyticsService{Source: store, Logger: logger},
		Bookings:  &service.BookingService{Store: store, Logger: logger},
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.Use(middleware.APIKey(cfg.APIKey))
	{
		api.GET("/analytics", h.AnalyticsSnapshot)
		api.GET("/loads", h.LoadsList)
		api.GET("/loads/:load_id", h.LoadDetails)
		api.POST("/loads/import", h.ImportLoads)
		api.POST("/booked-loads", h.CreateBooking)
		api.GET("/booked-loads", h.BookingsList)
		api.GET("/booked-loads/:load_id", h.GetBooking)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
