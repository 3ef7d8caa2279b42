package auth

import (
	"strings"

	"celulas-backend/internal/authz"
	"celulas-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserRoleKey = "user_role"
	CtxClaimsKey   = "claims"
)

func JWTMiddleware(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Cabeçalho Authorization ausente")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Formato esperado: 'Bearer <token>'")
		}

		claims, err := svc.Authenticate(c.UserContext(), strings.TrimSpace(parts[1]))
		if err != nil {
			return err
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxClaimsKey, claims)

		return c.Next()
	}
}

// CallerFrom lê o chamador autenticado dos locals.
func CallerFrom(c *fiber.Ctx) (authz.Caller, error) {
	id, ok := c.Locals(CtxUserIDKey).(string)
	if !ok || id == "" {
		return authz.Caller{}, fiber.NewError(fiber.StatusUnauthorized, "Usuário não autenticado")
	}
	role, ok := c.Locals(CtxUserRoleKey).(models.UserRole)
	if !ok {
		return authz.Caller{}, fiber.NewError(fiber.StatusForbidden, "Papel não encontrado")
	}
	return authz.Caller{ID: id, Role: role}, nil
}

// RequireAction aplica a política de uma ação sem recurso com dono.
func RequireAction(action authz.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := CallerFrom(c)
		if err != nil {
			return err
		}
		if err := authz.Authorize(caller, action, authz.Resource{}).Err(); err != nil {
			return err
		}
		return c.Next()
	}
}
