package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/martin-1103/gbika-sub001/internal/platform/version"
)

const (
	startupCheckBudget   = 2 * time.Second
	readinessCheckBudget = 5 * time.Second
)

// HealthCheck pings one backing dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type dependencyStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readinessReport struct {
	Ready        bool                        `json:"ready"`
	Dependencies map[string]dependencyStatus `json:"dependencies"`
}

type livenessReport struct {
	Alive         bool    `json:"alive"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Connections   int     `json:"connections"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.dependencyHandler(startupCheckBudget))
	s.echo.GET("/health/ready", s.dependencyHandler(readinessCheckBudget))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/version", s.handleVersion)
}

// dependencyHandler reports the state of every configured dependency.
func (s *Server) dependencyHandler(budget time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), budget)
		defer cancel()

		report := s.checkDependencies(ctx)
		status := http.StatusOK
		if !report.Ready {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, report)
	}
}

func (s *Server) checkDependencies(ctx context.Context) readinessReport {
	results := make([]error, len(s.healthChecks))
	var wg sync.WaitGroup
	for i, hc := range s.healthChecks {
		wg.Go(func() { results[i] = hc.Check(ctx) })
	}
	wg.Wait()

	report := readinessReport{Ready: true, Dependencies: make(map[string]dependencyStatus, len(results))}
	for i, err := range results {
		name := s.healthChecks[i].Name
		if err != nil {
			slog.WarnContext(ctx, "Dependency check failed", "dependency", name, "error", err)
			report.Ready = false
			report.Dependencies[name] = dependencyStatus{Error: err.Error()}
			continue
		}
		report.Dependencies[name] = dependencyStatus{OK: true}
	}
	return report
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, livenessReport{
		Alive:         true,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Connections:   s.relay.ConnectionCount(),
	})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}
