package audit

import (
	"celulas-backend/internal/apperr"
	"celulas-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	UserID      string             `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    string             `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	BeforeData  datatypes.JSON     `json:"before_data"`
	AfterData   datatypes.JSON     `json:"after_data"`
}

// GET /api/audit-logs?entity_type=cell&entity_id=...&user_id=...&limit=50
func ListAuditLogsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		logs, err := List(db.WithContext(c.UserContext()), Filter{
			UserID:     c.Query("user_id"),
			EntityType: c.Query("entity_type"),
			EntityID:   c.Query("entity_id"),
			Limit:      c.QueryInt("limit", 100),
		})
		if err != nil {
			return apperr.Internal(err)
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				UserID:      l.UserID,
				UserName:    l.UserName,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
				BeforeData:  l.BeforeData,
				AfterData:   l.AfterData,
			})
		}

		return c.JSON(resp)
	}
}
