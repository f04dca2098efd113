// Package adminapi is a small HTTP surface, separate from the chat TCP
// port, for operational visibility into a running relay: liveness and a
// client-count snapshot. It is grounded on the teacher's server/api.go
// APIServer (Echo + middleware wiring, JSON response shape, Run's
// Start/Shutdown pairing), trimmed to the one resource the core spec's
// Directory actually exposes: a thread-safe client count.
package adminapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ClientCounter is the one piece of directory state the admin API reads.
// directory.Directory satisfies this.
type ClientCounter interface {
	ClientCount() int
}

// Server is the admin HTTP surface.
type Server struct {
	echo *echo.Echo
	dir  ClientCounter
}

// NewServer builds a Server reporting on dir's connection count.
func NewServer(dir ClientCounter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[adminapi] %s %s %d request_id=%s", v.Method, v.URI, v.Status, v.RequestID)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{echo: e, dir: dir}
	e.GET("/healthz", s.handleHealthz)
	e.GET("/stats", s.handleStats)
	return s
}

// Run starts the admin HTTP server on addr and blocks until ctx is
// canceled, then shuts down gracefully — the same Start/Shutdown pairing
// as the teacher's APIServer.Run.
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[adminapi] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[adminapi] shutdown: %v", err)
	}
}

// healthzResponse is the payload for GET /healthz.
type healthzResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, healthzResponse{Status: "ok"})
}

// statsResponse is the payload for GET /stats.
type statsResponse struct {
	Clients int `json:"clients"`
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, statsResponse{Clients: s.dir.ClientCount()})
}
