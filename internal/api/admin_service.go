package api

import (
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/matheus3301/dmchat/internal/bus"
	"github.com/matheus3301/dmchat/internal/hub"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
)

// AdminService serves the administrator endpoints.
type AdminService struct {
	db        *store.DB
	hub       *hub.Hub
	bus       *bus.Bus
	logger    *zap.Logger
	startedAt time.Time
}

// NewAdminService creates an admin service.
func NewAdminService(db *store.DB, h *hub.Hub, b *bus.Bus, logger *zap.Logger) *AdminService {
	return &AdminService{db: db, hub: h, bus: b, logger: logger, startedAt: time.Now()}
}

// Broadcast handles POST /api/admin/broadcast.
func (s *AdminService) Broadcast(c *fiber.Ctx) error {
	var req BroadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid_request", Message: "invalid request body"})
	}

	res, err := s.hub.Broadcast(c.UserContext(), req.Message)
	switch {
	case errors.Is(err, hub.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "validation_error", Message: err.Error()})
	case err != nil:
		s.logger.Error("broadcast failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "broadcast_failed", Message: "failed to broadcast"})
	}
	s.logger.Info("admin broadcast", zap.String("admin", CurrentUser(c).Username), zap.Int("total_users", res.TotalUsers))
	return c.JSON(res)
}

// Stats handles GET /api/admin/stats.
func (s *AdminService) Stats(c *fiber.Ctx) error {
	count, err := s.db.MessageCount(c.UserContext())
	if err != nil {
		s.logger.Error("failed to count messages", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "store_error", Message: "failed to load stats"})
	}
	users, conns := s.hub.Registry().Stats()
	return c.JSON(StatsResponse{
		OnlineUsers:    users,
		Connections:    conns,
		StoredMessages: count,
		DroppedEvents:  s.bus.Dropped(),
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
	})
}

// Users handles GET /api/admin/users.
func (s *AdminService) Users(c *fiber.Ctx) error {
	users, err := s.db.ListUsers(c.UserContext())
	if err != nil {
		s.logger.Error("failed to list users", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "store_error", Message: "failed to load users"})
	}
	views := make([]UserView, 0, len(users))
	for i := range users {
		views = append(views, userView(&users[i], s.hub.Registry()))
	}
	return c.JSON(UsersResponse{Users: views})
}

// Suspend handles POST /api/admin/users/:username/suspend.
func (s *AdminService) Suspend(c *fiber.Ctx) error {
	return s.setPermitted(c, false)
}

// Permit handles POST /api/admin/users/:username/permit.
func (s *AdminService) Permit(c *fiber.Ctx) error {
	return s.setPermitted(c, true)
}

func (s *AdminService) setPermitted(c *fiber.Ctx, permitted bool) error {
	username := c.Params("username")
	err := s.db.SetUserPermitted(c.UserContext(), username, permitted)
	if errors.Is(err, sql.ErrNoRows) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "not_found", Message: "user not found"})
	}
	if err != nil {
		s.logger.Error("failed to update user", zap.Error(err), zap.String("username", username))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "store_error", Message: "failed to update user"})
	}
	s.logger.Info("user permission changed", zap.String("username", username), zap.Bool("permitted", permitted))

	u, err := s.db.FindUserByUsername(c.UserContext(), username)
	if err != nil || u == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(userView(u, s.hub.Registry()))
}

// Health handles GET /health.
func (s *AdminService) Health(c *fiber.Ctx) error {
	if err := s.db.PingContext(c.UserContext()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "unhealthy", Message: "store unreachable"})
	}
	_, conns := s.hub.Registry().Stats()
	return c.JSON(HealthResponse{Status: "healthy", Connections: conns})
}
