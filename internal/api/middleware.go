package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/matheus3301/dmchat/internal/auth"
	"github.com/matheus3301/dmchat/internal/store"
	"go.uber.org/zap"
)

// UserContextKey holds the authenticated *store.User in the fiber context.
const UserContextKey = "dmchat.user"

// RequireUser rejects requests without a valid bearer token for a permitted account.
func RequireUser(authn *auth.Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		user, err := authn.Authenticate(c.UserContext(), token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: unauthorizedMessage(err),
			})
		}
		c.Locals(UserContextKey, user)
		return c.Next()
	}
}

// RequireAdmin rejects authenticated users that do not hold the admin role.
// It must run after RequireUser.
func RequireAdmin(c *fiber.Ctx) error {
	user := CurrentUser(c)
	if user == nil || !user.IsAdmin() {
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Error:   "forbidden",
			Message: "administrator access required",
		})
	}
	return c.Next()
}

// CurrentUser returns the account RequireUser stored, or nil.
func CurrentUser(c *fiber.Ctx) *store.User {
	u, _ := c.Locals(UserContextKey).(*store.User)
	return u
}

func unauthorizedMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return "authorization header is required"
	case errors.Is(err, auth.ErrExpiredToken):
		return "token expired"
	case errors.Is(err, auth.ErrNotPermitted):
		return "account not permitted"
	default:
		return "invalid token"
	}
}

// ErrorHandler renders errors that escape handlers as ErrorResponse.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			logger.Error("request failed", zap.Error(err), zap.String("method", c.Method()), zap.String("path", c.Path()))
		}

		return c.Status(code).JSON(ErrorResponse{
			Error:   "server_error",
			Message: message,
		})
	}
}

// RequestLogger logs each non-upgrade request after it completes.
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get(fiber.HeaderUpgrade) == "websocket" {
			return c.Next()
		}
		err := c.Next()
		logger.Debug("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()))
		return err
	}
}
