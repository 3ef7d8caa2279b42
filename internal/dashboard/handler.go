package dashboard

import (
	"celulas-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// GET /api/dashboard
func DashboardHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}
		resp, err := svc.ForCaller(c.UserContext(), caller)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}

// GET /api/dashboard/prayer-chart?period=daily&count=7&cell_id=...
func PrayerChartHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		count := c.QueryInt("count", 0)
		if c.Query("count") != "" && count <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "count inválido")
		}

		resp, err := svc.PrayerChart(c.UserContext(), caller, c.Query("cell_id"), c.Query("period", "daily"), count)
		if err != nil {
			return err
		}
		return c.JSON(resp)
	}
}
