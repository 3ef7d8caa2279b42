package prayers

import (
	"celulas-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// POST /api/prayers/log-daily
func LogDailyHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		res, err := svc.LogDaily(c.UserContext(), caller.ID)
		if err != nil {
			return err
		}

		status := fiber.StatusCreated
		if res.AlreadyLogged {
			status = fiber.StatusOK
		}
		return c.Status(status).JSON(res)
	}
}

// GET /api/prayers/me
func SummaryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}
		sum, err := svc.Summary(c.UserContext(), caller.ID)
		if err != nil {
			return err
		}
		return c.JSON(sum)
	}
}

// GET /api/prayers/history?from=YYYY-MM-DD&to=YYYY-MM-DD
func HistoryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}
		dates, err := svc.History(c.UserContext(), caller.ID, c.Query("from"), c.Query("to"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"dates": dates})
	}
}

// GET /api/cells/:id/prayers
func CellSummaryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}
		list, err := svc.CellSummary(c.UserContext(), caller, c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}
