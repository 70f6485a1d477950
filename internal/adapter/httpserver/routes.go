package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/martin-1103/gbika-sub001/internal/domain"
)

const relayPath = "/livechat/ws"

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware(relayPath))
	}
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.config.AppURL},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))

	s.registerHealthRoutes()
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	s.echo.GET(relayPath, s.relay.HandleUpgrade)
	s.registerLivechatRoutes()
}

func (s *Server) registerLivechatRoutes() {
	api := s.echo.Group("/api/livechat")
	staffOnly := s.requireRoles(domain.StaffRoles)

	api.POST("/session", s.handleCreateSession,
		newRateLimiter(s.config.SessionRateLimitPerSecond, s.config.SessionRateLimitBurst))
	api.DELETE("/session", s.handleEndSession, s.requireRoles(domain.ListenerRoles))

	api.GET("/messages", s.handleListMessages, staffOnly)
	api.POST("/messages/:id/moderate", s.handleModerate, staffOnly)
	api.POST("/sessions/:id/messages", s.handlePostAdminMessage, staffOnly)
	if s.instances != nil {
		api.GET("/instances", s.handleListInstances, staffOnly)
	}
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
