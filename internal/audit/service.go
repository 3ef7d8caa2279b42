package audit

import (
	"encoding/json"
	"fmt"

	"celulas-backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type LogOptions struct {
	UserID      string
	UserName    string
	EntityType  string
	EntityID    string
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// WriteLog grava um registro de auditoria. Recebe a transação da operação
// auditada para que ambos sejam confirmados juntos.
func WriteLog(tx *gorm.DB, opts LogOptions) error {
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	userName := opts.UserName
	if userName == "" && opts.UserID != "" {
		var names []string
		if err := tx.Model(&models.User{}).Where("id = ?", opts.UserID).Pluck("name", &names).Error; err != nil {
			return fmt.Errorf("falha ao buscar autor da auditoria: %w", err)
		}
		if len(names) > 0 {
			userName = names[0]
		}
	}

	log := models.AuditLog{
		UserID:      opts.UserID,
		UserName:    userName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  datatypes.JSON(beforeStr),
		AfterData:   datatypes.JSON(afterStr),
	}

	if err := tx.Create(&log).Error; err != nil {
		return fmt.Errorf("falha ao gravar auditoria: %w", err)
	}
	return nil
}

type Filter struct {
	UserID     string
	EntityType string
	EntityID   string
	Limit      int
}

func List(db *gorm.DB, f Filter) ([]models.AuditLog, error) {
	q := db.Model(&models.AuditLog{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}

	var logs []models.AuditLog
	if err := q.Order("created_at DESC, id DESC").Limit(f.Limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
