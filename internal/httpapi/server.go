package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/arc-self/bacnet-eventgateway/internal/model"
)

// CheckStatus is one named component's health.
type CheckStatus struct {
	Name string `json:"name"`
	Up   bool   `json:"up"`
}

// Checker reports whether a dependency (cache, event consumers, BACnet
// layer) is currently healthy.
type Checker func() CheckStatus

// StatusProvider supplies the JSON body for GET /status.
type StatusProvider interface {
	Snapshot() []*model.ObjectRecord
	Device() *model.DeviceConfig
}

// Server is the health/metrics/status HTTP surface, spec.md §6.
type Server struct {
	echo     *echo.Echo
	log      *zap.Logger
	checks   []Checker
	provider StatusProvider
}

// New constructs the HTTP server. checks are evaluated on every /health,
// /health/ready call; metrics comes from the shared *Metrics registry.
func New(serviceName string, metrics *Metrics, provider StatusProvider, checks []Checker, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.Recover())

	s := &Server{echo: e, log: log, checks: checks, provider: provider}

	e.GET("/health", s.handleHealth)
	e.GET("/health/live", s.handleLive)
	e.GET("/health/ready", s.handleReady)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	e.GET("/status", s.handleStatus)

	return s
}

// Start begins serving on addr ("bindAddress:port") in the background.
func (s *Server) Start(addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			s.log.Error("httpapi: server failure", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the server within the given timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func (s *Server) runChecks() []CheckStatus {
	out := make([]CheckStatus, 0, len(s.checks))
	for _, check := range s.checks {
		out = append(out, check())
	}
	return out
}

func allUp(statuses []CheckStatus) bool {
	for _, st := range statuses {
		if !st.Up {
			return false
		}
	}
	return true
}

func (s *Server) handleHealth(c echo.Context) error {
	statuses := s.runChecks()
	code := http.StatusOK
	if !allUp(statuses) {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, echo.Map{"checks": statuses})
}

func (s *Server) handleLive(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleReady(c echo.Context) error {
	statuses := s.runChecks()
	if !allUp(statuses) {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"checks": statuses})
	}
	return c.JSON(http.StatusOK, echo.Map{"checks": statuses})
}

func (s *Server) handleStatus(c echo.Context) error {
	objects := s.provider.Snapshot()
	device := s.provider.Device()
	return c.JSON(http.StatusOK, echo.Map{
		"device":      device,
		"objectCount": len(objects),
		"objects":     objects,
	})
}
