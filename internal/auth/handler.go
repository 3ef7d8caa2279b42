package auth

import (
	"github.com/gofiber/fiber/v2"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/auth/register
func RegisterHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		res, err := svc.Register(c.UserContext(), body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// POST /api/auth/login
func LoginHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		res, err := svc.Login(c.UserContext(), body.Email, body.Password)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// GET /api/me
func MeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := CallerFrom(c)
		if err != nil {
			return err
		}

		profile, err := svc.Profile(c.UserContext(), caller.ID)
		if err != nil {
			return err
		}
		return c.JSON(profile)
	}
}

// POST /api/auth/logout
func LogoutHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, _ := c.Locals(CtxClaimsKey).(*JWTCustomClaims)
		if err := svc.Logout(c.UserContext(), claims); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
