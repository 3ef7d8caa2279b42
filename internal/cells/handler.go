package cells

import (
	"strings"

	"celulas-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

type userIDRequest struct {
	UserID string `json:"user_id"`
}

// GET /api/cells?supervisor_id=...&leader_id=...
func ListCellsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		views, err := svc.List(c.UserContext(), ListFilter{
			SupervisorID: c.Query("supervisor_id"),
			LeaderID:     c.Query("leader_id"),
		})
		if err != nil {
			return err
		}
		return c.JSON(views)
	}
}

// GET /api/cells/:id
func GetCellHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(view)
	}
}

// POST /api/cells
func CreateCellHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		var body CreateCellInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dados inválidos")
		}

		view, err := svc.Create(c.UserContext(), caller, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	}
}

// PUT /api/cells/:id
func UpdateCellHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		var body UpdateCellInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dados inválidos")
		}

		view, err := svc.Update(c.UserContext(), caller, c.Params("id"), body)
		if err != nil {
			return err
		}
		return c.JSON(view)
	}
}

// DELETE /api/cells/:id
func DeleteCellHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), caller, c.Params("id")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/cells/:id/members
func ListMembersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}
		list, err := svc.Members(c.UserContext(), caller, c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(list)
	}
}

// POST /api/cells/:id/members {"user_id": "..."}
func AddMemberHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		var body userIDRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dados inválidos")
		}

		if err := svc.AddMember(c.UserContext(), caller, c.Params("id"), body.UserID); err != nil {
			return err
		}
		view, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	}
}

// DELETE /api/cells/:id/members/:userId
func RemoveMemberHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}
		if err := svc.RemoveMember(c.UserContext(), caller, c.Params("id"), c.Params("userId")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// PUT /api/cells/:id/secretary {"user_id": "..."}
func AssignSecretaryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		var body userIDRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dados inválidos")
		}

		if err := svc.AssignSecretary(c.UserContext(), caller, c.Params("id"), body.UserID); err != nil {
			return err
		}
		view, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(view)
	}
}

// PUT /api/cells/:id/supervisor {"user_id": "..."}; vazio remove
func SetSupervisorHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		var body userIDRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dados inválidos")
		}

		if err := svc.SetSupervisor(c.UserContext(), caller, c.Params("id"), body.UserID); err != nil {
			return err
		}
		view, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(view)
	}
}

// POST /api/cells/:id/leaders {"user_id": "..."}
func AddLeaderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		var body userIDRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Dados inválidos")
		}

		if err := svc.AddLeader(c.UserContext(), caller, c.Params("id"), body.UserID); err != nil {
			return err
		}
		view, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(view)
	}
}

// DELETE /api/cells/:id/leaders/:userId
func RemoveLeaderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}
		if err := svc.RemoveLeader(c.UserContext(), caller, c.Params("id"), c.Params("userId")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/cells/:id/members/export
func ExportMembersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		data, filename, err := svc.ExportMembers(c.UserContext(), caller, c.Params("id"))
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Attachment(filename)
		return c.Send(data)
	}
}

// POST /api/cells/:id/members/import (multipart, campo "file", .xlsx)
func ImportMembersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := auth.CallerFrom(c)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Arquivo não enviado")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "Apenas arquivos .xlsx são aceitos")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Não foi possível abrir o arquivo")
		}
		defer file.Close()

		res, err := svc.ImportMembers(c.UserContext(), caller, c.Params("id"), file)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}
