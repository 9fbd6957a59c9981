package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sylvia-iot/broker-core/internal/config"
	"github.com/sylvia-iot/broker-core/internal/control"
	"github.com/sylvia-iot/broker-core/internal/supervisor"
)

// newHealthServer builds the ambient health/readiness/status HTTP surface —
// the operational surface an orchestrator or load balancer probes, not the
// CRUD API.
func newHealthServer(cfg *config.Settings, sup *supervisor.Supervisor, plane *control.Plane) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e.GET("/readyz", func(c echo.Context) error {
		if !plane.Ready() {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "control plane not ready"})
		}
		return c.NoContent(http.StatusOK)
	})

	e.GET("/statusz", func(c echo.Context) error {
		stats := sup.Stats()
		return c.JSON(http.StatusOK, map[string]int{
			"applications": stats.Applications,
			"networks":     stats.Networks,
		})
	})

	return e
}
