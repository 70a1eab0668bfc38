package daemon

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/matheus3301/dmchat/internal/api"
	"github.com/matheus3301/dmchat/internal/config"
	"github.com/matheus3301/dmchat/internal/ws"
	"go.uber.org/zap"
)

// Server manages the HTTP and WebSocket listener of the daemon.
type Server struct {
	app      *fiber.App
	listen   string
	listener net.Listener
	logger   *zap.Logger
}

// NewServer creates the fiber app and mounts every route.
func NewServer(cfg *config.Config, logger *zap.Logger, wsHandler *ws.Handler, services api.Services) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          api.ErrorHandler(logger),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(api.RequestLogger(logger.Named("http")))

	app.Use("/ws", wsHandler.Upgrade)
	app.Get("/ws", wsHandler.Serve())
	api.Register(app, services)

	return &Server{
		app:    app,
		listen: cfg.Server.Listen,
		logger: logger,
	}
}

// Start binds the listen address and serves in the background. A bind
// failure is returned to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.listen, err)
	}
	s.listener = ln
	s.logger.Info("http server starting", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.app.Listener(ln); err != nil {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("http server stopping")
	return s.app.ShutdownWithContext(ctx)
}
