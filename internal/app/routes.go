package app

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/campus-registrar-api/internal/handler"
	"github.com/noah-isme/campus-registrar-api/internal/middleware"
	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/pkg/config"
	"github.com/noah-isme/campus-registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-registrar-api/pkg/middleware/requestid"
)

var (
	staffRoles    = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleRegistrar}
	selfAndStaff  = append([]models.UserRole{models.RoleStudent}, staffRoles...)
	gradingRoles  = append([]models.UserRole{models.RoleTeacher}, staffRoles...)
	anyRole       = append([]models.UserRole{models.RoleTeacher}, selfAndStaff...)
	adminOnlyRole = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}
)

// Router builds the HTTP façade over the registration core.
func (a *App) Router() *gin.Engine {
	if a.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(a.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))

	checks := map[string]handler.ReadinessCheck{"store": a.Ping}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(a.Metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if a.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registrations := handler.NewRegistrationHandler(a.Gateway)
	sections := handler.NewSectionHandler(a.Enrollments)
	audit := handler.NewAuditHandler(a.Audit)
	maintenance := handler.NewMaintenanceHandler(a.Gateway, a.Validate)

	api := r.Group(a.Config.APIPrefix)
	api.Use(middleware.JWT(a.Tokens))

	api.POST("/registrations", middleware.RequireRoles(selfAndStaff...), registrations.Register)
	api.DELETE("/enrollments/:id", middleware.RequireRoles(selfAndStaff...), registrations.Drop)
	api.POST("/enrollments/:id/complete", middleware.RequireRoles(gradingRoles...), registrations.Complete)
	api.POST("/overrides", middleware.RequireRoles(staffRoles...), registrations.ForceEnroll)

	api.GET("/sections/:id/state", middleware.RequireRoles(anyRole...), sections.State)
	api.GET("/sections/:id/waitlist", middleware.RequireRoles(staffRoles...), sections.Waitlist)
	api.DELETE("/sections/:id/waitlist/:studentId", middleware.RequireRoles(selfAndStaff...), registrations.RemoveFromWaitlist)
	api.GET("/sections/:id/invariants", middleware.RequireRoles(staffRoles...), sections.Invariants)

	api.GET("/audit/events", middleware.RequireRoles(staffRoles...), audit.Events)
	api.GET("/audit/overrides", middleware.RequireRoles(staffRoles...), audit.Overrides)
	api.GET("/audit/export", middleware.RequireRoles(staffRoles...), audit.Export)

	api.GET("/maintenance", middleware.RequireRoles(staffRoles...), maintenance.Get)
	api.PUT("/maintenance", middleware.RequireRoles(adminOnlyRole...), maintenance.Put)
	api.GET("/metrics/summary", middleware.RequireRoles(staffRoles...), metricsHandler.Runtime)

	return r
}
