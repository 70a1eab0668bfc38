package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/matheus3301/dmchat/internal/hub"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
)

// UserService exposes accounts and their presence.
type UserService struct {
	db       *store.DB
	registry *hub.Registry
	logger   *zap.Logger
}

// NewUserService creates a user service.
func NewUserService(db *store.DB, h *hub.Hub, logger *zap.Logger) *UserService {
	return &UserService{db: db, registry: h.Registry(), logger: logger}
}

// Me handles GET /api/auth/me.
func (s *UserService) Me(c *fiber.Ctx) error {
	return c.JSON(userView(CurrentUser(c), s.registry))
}

// Presence handles GET /api/users/:username/presence. Online state comes from
// the live registry, last-seen from the store.
func (s *UserService) Presence(c *fiber.Ctx) error {
	username := c.Params("username")
	u, err := s.db.FindUserByUsername(c.UserContext(), username)
	if err != nil {
		s.logger.Error("failed to find user", zap.Error(err), zap.String("username", username))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "store_error", Message: "failed to load user"})
	}
	if u == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "not_found", Message: "user not found"})
	}
	return c.JSON(PresenceResponse{
		Username: u.Username,
		IsOnline: s.registry.Online(u.Username),
		LastSeen: lastSeenPtr(u.LastSeen),
		Devices:  s.registry.Devices(u.Username),
	})
}
