// Package api is the HTTP surface of the daemon.
package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/matheus3301/dmchat/internal/auth"
)

// Services groups the handlers mounted by Register.
type Services struct {
	Auth     *auth.Authenticator
	Messages *MessageService
	Users    *UserService
	Admin    *AdminService
}

// Register mounts every REST route on app.
func Register(app *fiber.App, s Services) {
	app.Get("/health", s.Admin.Health)

	api := app.Group("/api", RequireUser(s.Auth))
	api.Get("/auth/me", s.Users.Me)
	api.Get("/users/:username/presence", s.Users.Presence)

	messages := api.Group("/messages")
	messages.Get("/conversation/:contact", s.Messages.Conversation)
	messages.Get("/contacts", s.Messages.Contacts)
	messages.Get("/search", s.Messages.Search)

	admin := api.Group("/admin", RequireAdmin)
	admin.Post("/broadcast", s.Admin.Broadcast)
	admin.Get("/stats", s.Admin.Stats)
	admin.Get("/users", s.Admin.Users)
	admin.Post("/users/:username/suspend", s.Admin.Suspend)
	admin.Post("/users/:username/permit", s.Admin.Permit)
}
