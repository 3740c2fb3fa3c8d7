// Package api serves the HTTP surface: the instance read model, stored
// contacts/chats/messages, the emit endpoint, downloaded media and the
// WebSocket room router.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/matheus3301/wahub/internal/bus"
	"github.com/matheus3301/wahub/internal/hub"
	"github.com/matheus3301/wahub/internal/store"
	"go.uber.org/zap"
)

// Options configures where media is served from.
type Options struct {
	MediaDir    string
	MediaPrefix string
}

// Server is the echo application.
type Server struct {
	echo   *echo.Echo
	ctrl   hub.Controller
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewServer builds the router. ws is mounted at /ws.
func NewServer(ctrl hub.Controller, db *store.DB, b *bus.Bus, ws http.Handler, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, ctrl: ctrl, db: db, bus: b, logger: logger}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.Error(v.Error))
			return nil
		},
	}))
	e.Use(middleware.CORS())

	g := e.Group("/api")
	g.GET("/instances", s.listInstances)
	g.POST("/instances", s.createInstance)
	g.DELETE("/instances/:id", s.deleteInstance)
	g.GET("/instances/:id/contacts", s.listContacts)
	g.GET("/instances/:id/chats", s.listChats)
	g.GET("/instances/:id/chats/:chatId/messages", s.listMessages)
	g.POST("/emit", s.emit)

	if opts.MediaDir != "" && opts.MediaPrefix != "" {
		e.Static(opts.MediaPrefix, opts.MediaDir)
	}
	if ws != nil {
		e.GET("/ws", echo.WrapHandler(ws))
	}
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve accepts connections on ln and blocks until the server stops.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("http server starting", zap.String("addr", ln.Addr().String()))
	s.echo.Listener = ln
	err := s.echo.Start(ln.Addr().String())
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping")
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
