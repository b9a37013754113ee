package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/utils"
)

// RequireRole ensures that the authenticated user possesses one of the allowed roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, role := range roles {
		normalized := models.Role(strings.ToUpper(strings.TrimSpace(string(role))))
		if normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := allowed[RoleFromContext(c)]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}

// RequireStaff allows ADMIN, BOARD_MEMBER, TUTOR and ASISTAN callers.
func RequireStaff() fiber.Handler {
	return RequireRole(models.StaffRoles...)
}

// RoleFromContext returns the caller's role stored by JWTProtected.
func RoleFromContext(c *fiber.Ctx) models.Role {
	return models.Role(normalizeRoleValue(c.Locals(localUserRole)))
}

// UserIDFromContext returns the caller's id stored by JWTProtected, or 0.
func UserIDFromContext(c *fiber.Ctx) uint {
	switch v := c.Locals(localUserID).(type) {
	case uint:
		return v
	case int:
		if v > 0 {
			return uint(v)
		}
	}
	return 0
}

func normalizeRoleValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToUpper(strings.TrimSpace(v))
	case models.Role:
		return strings.ToUpper(strings.TrimSpace(string(v)))
	case fmt.Stringer:
		return strings.ToUpper(strings.TrimSpace(v.String()))
	default:
		if value == nil {
			return ""
		}
		return strings.ToUpper(strings.TrimSpace(fmt.Sprintf("%v", value)))
	}
}
