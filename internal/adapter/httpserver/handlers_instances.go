package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/martin-1103/gbika-sub001/internal/domain"
	apperrors "github.com/martin-1103/gbika-sub001/internal/platform/errors"
)

type instancesResponse struct {
	Instances   []domain.InstanceInfo `json:"instances"`
	Connections int                   `json:"connections"`
}

func (s *Server) handleListInstances(c echo.Context) error {
	instances, err := s.instances.Instances(c.Request().Context())
	if err != nil {
		return apperrors.UnavailableError("Presence unavailable", err)
	}

	total := 0
	for _, info := range instances {
		total += info.Connections
	}

	if err := c.JSON(http.StatusOK, instancesResponse{Instances: instances, Connections: total}); err != nil {
		return fmt.Errorf("failed to write instances response: %w", err)
	}
	return nil
}
