package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/matheus3301/dmchat/internal/hub"
	"github.com/matheus3301/dmchat/internal/protocol"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 100
	searchLimit      = 20
)

// MessageService serves message history for the authenticated user.
type MessageService struct {
	db       *store.DB
	registry *hub.Registry
	logger   *zap.Logger
}

// NewMessageService creates a message service backed by the store.
func NewMessageService(db *store.DB, h *hub.Hub, logger *zap.Logger) *MessageService {
	return &MessageService{db: db, registry: h.Registry(), logger: logger}
}

// Conversation handles GET /api/messages/conversation/:contact. Fetching a
// page marks the contact's messages to the caller read and delivered.
func (s *MessageService) Conversation(c *fiber.Ctx) error {
	user := CurrentUser(c)
	contact := c.Params("contact")
	if contact == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "validation_error", Message: "contact is required"})
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", defaultPageLimit)
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	msgs, err := s.db.FindMessagesBetween(c.UserContext(), user.Username, contact, page, limit)
	if err != nil {
		s.logger.Error("failed to load conversation", zap.Error(err), zap.String("username", user.Username))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "store_error", Message: "failed to load messages"})
	}
	if _, err := s.db.MarkConversationRead(c.UserContext(), contact, user.Username); err != nil {
		s.logger.Warn("failed to mark conversation read", zap.Error(err), zap.String("username", user.Username))
	}

	views := make([]protocol.MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, protocol.ViewOf(&msgs[i]))
	}
	return c.JSON(ConversationResponse{
		Messages:   views,
		Pagination: Pagination{Page: page, Limit: limit, Total: len(views)},
	})
}

// Contacts handles GET /api/messages/contacts. With no conversations yet it
// lists everyone the caller could write to.
func (s *MessageService) Contacts(c *fiber.Ctx) error {
	user := CurrentUser(c)
	convs, err := s.db.ListConversations(c.UserContext(), user.Username)
	if err != nil {
		s.logger.Error("failed to list conversations", zap.Error(err), zap.String("username", user.Username))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "store_error", Message: "failed to load contacts"})
	}

	contacts := make([]ContactView, 0, len(convs))
	for i := range convs {
		last := protocol.ViewOf(&convs[i].LastMessage)
		contacts = append(contacts, ContactView{
			Username:    convs[i].Peer,
			IsOnline:    s.registry.Online(convs[i].Peer),
			LastMessage: &last,
			UnreadCount: convs[i].UnreadCount,
		})
	}
	if len(contacts) > 0 {
		return c.JSON(ContactsResponse{Contacts: contacts})
	}

	users, err := s.db.SearchUsers(c.UserContext(), "", user.Username, maxPageLimit)
	if err != nil {
		s.logger.Error("failed to list users", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "store_error", Message: "failed to load contacts"})
	}
	for _, u := range users {
		contacts = append(contacts, ContactView{Username: u.Username, IsOnline: s.registry.Online(u.Username)})
	}
	return c.JSON(ContactsResponse{Contacts: contacts})
}

// Search handles GET /api/messages/search?q=.
func (s *MessageService) Search(c *fiber.Ctx) error {
	user := CurrentUser(c)
	q := strings.TrimSpace(c.Query("q"))
	if len(q) < 2 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "validation_error", Message: "query must be at least 2 characters"})
	}

	users, err := s.db.SearchUsers(c.UserContext(), q, user.Username, searchLimit)
	if err != nil {
		s.logger.Error("failed to search users", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "store_error", Message: "search failed"})
	}
	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, userView(&u, s.registry))
	}
	return c.JSON(UsersResponse{Users: views})
}

func userView(u *store.User, reg *hub.Registry) UserView {
	return UserView{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		Permitted: u.Permitted,
		IsOnline:  reg.Online(u.Username),
		LastSeen:  lastSeenPtr(u.LastSeen),
		Devices:   reg.Devices(u.Username),
	}
}
