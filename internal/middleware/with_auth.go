package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/utils"
)

// AuthOptions configures the WithAuth helper.
type AuthOptions struct {
	// Roles lists the roles allowed through. Empty allows any authenticated caller.
	Roles []models.Role
	// SelfParam names a route parameter; callers whose id equals it pass regardless of role.
	SelfParam string
}

// WithAuth wraps a handler with authentication and authorization guards evaluated per route.
func WithAuth(handler fiber.Handler, opts AuthOptions) fiber.Handler {
	allowed := make(map[models.Role]struct{}, len(opts.Roles))
	for _, role := range opts.Roles {
		allowed[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		userID := UserIDFromContext(c)
		if userID == 0 {
			return utils.Fail(c, fiber.StatusUnauthorized, "authentication required", nil)
		}

		if len(allowed) == 0 {
			return handler(c)
		}
		if _, ok := allowed[RoleFromContext(c)]; ok {
			return handler(c)
		}
		if opts.SelfParam != "" {
			target, err := strconv.ParseUint(c.Params(opts.SelfParam), 10, 64)
			if err == nil && uint(target) == userID {
				return handler(c)
			}
		}

		return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", nil)
	}
}

// StaffOrSelf allows staff roles and the user named by the route parameter.
func StaffOrSelf(handler fiber.Handler, param string) fiber.Handler {
	return WithAuth(handler, AuthOptions{Roles: models.StaffRoles, SelfParam: param})
}
