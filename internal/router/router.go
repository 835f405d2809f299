// Package router registers the HTTP surface on an echo instance.
package router

import (
	"database/sql"
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/rental-hold-engine/internal/handler"
	"github.com/iliyamo/rental-hold-engine/internal/middleware"
)

// New builds an echo instance with the validator, panic recovery, CORS for
// corsOrigins and slog access logging installed.
func New(logger *slog.Logger, corsOrigins []string) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.CORS(corsOrigins))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				logger.Error("http: request failed", append(attrs, "err", v.Error)...)
				return nil
			}
			logger.Info("http: request", attrs...)
			return nil
		},
	}))
	return e
}

// RegisterRoutes registers the unauthenticated health checks.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterHolds registers the public hold endpoints.  limiter guards hold
// creation and may be nil.
func RegisterHolds(e *echo.Echo, h *handler.HoldHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1")
	create := []echo.MiddlewareFunc{}
	if limiter != nil {
		create = append(create, limiter)
	}
	g.POST("/holds", h.Create, create...)
	g.GET("/holds/active", h.ListActive)
	g.GET("/holds/:id", h.Get)
	g.POST("/holds/:id/release", h.Release)
	g.DELETE("/holds/:id", h.Release)
	g.GET("/units/:unitId/availability", h.Availability)
}

// RegisterPayments registers the payment provider webhook.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler) {
	e.POST("/v1/payments/webhook", p.Webhook)
}

// RegisterOps registers operator endpoints behind JWT plus the OPERATOR
// role, and the cron hook behind the shared secret.
func RegisterOps(e *echo.Echo, o *handler.OpsHandler, jwtSecret, cronSecretHash string) {
	e.GET("/v1/cron/expire", o.Expire, middleware.CronSecret(cronSecretHash))

	g := e.Group(
		"/v1/ops",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOperator),
	)
	g.POST("/holds/:id/confirm", o.Confirm)
	g.POST("/reservations/:id/sync", o.SyncReservation)
	g.POST("/expire", o.Expire)
}
