package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/martin-1103/gbika-sub001/internal/adapter/metrics"
	"github.com/martin-1103/gbika-sub001/internal/app"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	"github.com/martin-1103/gbika-sub001/internal/platform/config"
)

type sessionService interface {
	Create(ctx context.Context, req app.CreateSessionRequest) (*app.CreatedSession, error)
	End(ctx context.Context, sessionID uuid.UUID) error
}

type moderationService interface {
	Moderate(ctx context.Context, messageID uuid.UUID, action domain.ModerationAction, moderatorID string) (*domain.ChatMessage, error)
	PostAdminMessage(ctx context.Context, sessionID uuid.UUID, text string, author domain.Identity) (*domain.ChatMessage, error)
	ListPending(ctx context.Context, limit int) ([]domain.ChatMessage, error)
}

type authenticator interface {
	Authenticate(ctx context.Context, token string, allowed []domain.Role) (domain.Identity, error)
}

type instanceLister interface {
	Instances(ctx context.Context) ([]domain.InstanceInfo, error)
}

// relay is the live-socket side the REST handlers push events into.
type relay interface {
	HandleUpgrade(c echo.Context) error
	PublishModeration(ctx context.Context, msg *domain.ChatMessage)
	BroadcastAdmin(ctx context.Context, msg *domain.ChatMessage)
	EndSession(ctx context.Context, sessionID uuid.UUID)
	ConnectionCount() int
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	sessions   sessionService
	moderation moderationService
	auth       authenticator
	relay      relay
	instances  instanceLister

	httpMetrics    *metrics.HTTPMetrics
	livechat       *metrics.LivechatMetrics
	metricsHandler http.Handler
	healthChecks   []HealthCheck
	startTime      time.Time
}

// Deps wires a Server. Instances and the metrics fields are optional.
type Deps struct {
	Sessions       sessionService
	Moderation     moderationService
	Auth           authenticator
	Relay          relay
	Instances      instanceLister
	HTTPMetrics    *metrics.HTTPMetrics
	Livechat       *metrics.LivechatMetrics
	MetricsHandler http.Handler
	HealthChecks   []HealthCheck
}

func NewServer(cfg *config.Config, d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		sessions:       d.Sessions,
		moderation:     d.Moderation,
		auth:           d.Auth,
		relay:          d.Relay,
		instances:      d.Instances,
		httpMetrics:    d.HTTPMetrics,
		livechat:       d.Livechat,
		metricsHandler: d.MetricsHandler,
		healthChecks:   d.HealthChecks,
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
