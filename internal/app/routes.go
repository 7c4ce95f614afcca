package app

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/tutorhub-api/internal/handler"
	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/config"
	"github.com/noah-isme/tutorhub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutorhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutorhub-api/pkg/middleware/requestid"
)

// Router builds the HTTP surface.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	svc := a.Services

	prefix := strings.TrimRight(cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger, "/health", "/metrics", prefix+"/changes"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(svc.Metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(svc.Metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := a.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if a.Uploads != nil {
		r.Static("/uploads", a.Uploads.Path(""))
	}

	api := r.Group(prefix)

	authHandler := handler.NewAuthHandler(svc.Auth)
	reportHandler := handler.NewReportHandler(svc.Reports, a.Logger)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.GET("/export/:token", reportHandler.DownloadReport)

	changes := handler.NewChangesHandler(a.Feed, 0, a.Logger)
	api.GET("/changes", middleware.StreamJWT(svc.Auth), changes.Stream)

	secured := api.Group("")
	secured.Use(middleware.JWT(svc.Auth))

	secured.POST("/auth/logout", authHandler.Logout)
	secured.POST("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	tutor := middleware.RequireRoles(models.RoleTutor)

	users := handler.NewUserHandler(svc.Users)
	userRoutes := secured.Group("/users")
	userRoutes.GET("", staff, users.List)
	userRoutes.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin), "SELF"), users.Get)
	userRoutes.POST("", staff, middleware.Audit(a.Repos.Users, "CREATE", "users"), users.Create)
	userRoutes.PUT("/:id", staff, middleware.Audit(a.Repos.Users, "UPDATE", "users"), users.Update)
	userRoutes.PUT("/:id/role", staff, users.ChangeRole)
	userRoutes.DELETE("/:id", staff, users.Delete)

	profiles := handler.NewProfileHandler(svc.Profiles, svc.Availability)
	secured.GET("/profiles/:userId", profiles.Get)
	secured.PUT("/profiles/me", profiles.UpdateMe)
	secured.POST("/profiles/me/image", profiles.UploadImage)
	secured.GET("/tutors", profiles.Tutors)
	secured.GET("/tutors/:id/availability", profiles.Availability)
	secured.PUT("/tutors/me/availability", tutor, profiles.ReplaceAvailability)

	appts := handler.NewAppointmentHandler(svc.Appointments, svc.Evaluations)
	appts.Register(secured.Group("/appointments"))

	notifications := handler.NewNotificationHandler(svc.Notifications)
	secured.GET("/notifications", notifications.List)
	secured.POST("/notifications/read-all", notifications.MarkAllRead)
	secured.POST("/notifications/:id/read", notifications.MarkRead)

	announcements := handler.NewAnnouncementHandler(svc.Announcements)
	secured.GET("/announcements", announcements.List)
	secured.GET("/announcements/:id", announcements.Get)
	secured.POST("/announcements", staff, announcements.Create)
	secured.PUT("/announcements/:id", staff, announcements.Update)
	secured.DELETE("/announcements/:id", staff, announcements.Delete)

	eventsHandler := handler.NewEventHandler(svc.Events)
	secured.GET("/events", eventsHandler.List)
	secured.GET("/events/:id", eventsHandler.Get)
	secured.POST("/events", staff, eventsHandler.Create)
	secured.PUT("/events/:id", staff, eventsHandler.Update)
	secured.POST("/events/:id/image", staff, eventsHandler.UploadImage)
	secured.DELETE("/events/:id", staff, eventsHandler.Delete)

	analytics := handler.NewAnalyticsHandler(svc.Analytics)
	secured.GET("/analytics/me", analytics.Me)
	analyticsRoutes := secured.Group("/analytics", staff)
	analyticsRoutes.GET("/overview", analytics.Overview)
	analyticsRoutes.GET("/leaderboard", analytics.Leaderboard)
	analyticsRoutes.GET("/satisfaction", analytics.Satisfaction)
	analyticsRoutes.GET("/system", analytics.System)

	if cfg.Reports.Enabled {
		reports := secured.Group("/reports", staff)
		reports.POST("/generate", reportHandler.GenerateReport)
		reports.GET("/status/:id", reportHandler.ReportStatus)
	}

	return r
}
