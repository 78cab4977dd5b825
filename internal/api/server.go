package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the ingestion API server.
type Server struct {
	echo     *echo.Echo
	port     int
	resolver ProjectResolver
	enqueuer Enqueuer
	limiter  *projectLimiter
}

// Options tunes server behavior beyond the defaults.
type Options struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
}

func defaultOptions() Options {
	return Options{RateLimitPerSecond: 50, RateLimitBurst: 100}
}

// NewServer creates the ingestion API server.
func NewServer(port int, resolver ProjectResolver, enqueuer Enqueuer, opts *Options) *Server {
	o := defaultOptions()
	if opts != nil {
		o = *opts
	}

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:     e,
		port:     port,
		resolver: resolver,
		enqueuer: enqueuer,
		limiter:  newProjectLimiter(o.RateLimitPerSecond, o.RateLimitBurst),
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/track", s.handleTrack)
}

// Start begins serving and blocks until an interrupt, then shuts down
// gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// Shutdown stops the server without waiting for a signal.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
