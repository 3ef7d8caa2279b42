package users

import (
	"celulas-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

type roleRequest struct {
	Role string `json:"role"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// GET /api/users?role=&status=&cell_id=&unassigned=true
func ListUsersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		list, err := svc.List(c.UserContext(), caller, Filter{
			Role:       c.Query("role"),
			Status:     c.Query("status"),
			CellID:     c.Query("cell_id"),
			Unassigned: c.QueryBool("unassigned"),
		})
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}

// PUT /api/users/:id/role {"role": "LIDER"}
func UpdateRoleHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		var body roleRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dados inválidos")
		}

		res, err := svc.UpdateRole(c.UserContext(), caller, c.Params("id"), body.Role)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// PUT /api/users/:id/status {"status": "INACTIVE"}
func UpdateStatusHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		var body statusRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dados inválidos")
		}

		res, err := svc.UpdateStatus(c.UserContext(), caller, c.Params("id"), body.Status)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// PUT /api/me {"name": "...", "phone": "..."}
func UpdateProfileHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		var body UpdateProfileInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dados inválidos")
		}

		res, err := svc.UpdateProfile(c.UserContext(), caller.ID, body)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}
