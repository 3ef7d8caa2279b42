package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Quem fez
	UserID   string `gorm:"type:varchar(36);index" json:"user_id"`
	UserName string `gorm:"size:100" json:"user_name"`

	// Em quê ("cell", "cell_member", "user", ...)
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   string `gorm:"size:36;index" json:"entity_id"`

	Action      AuditAction `gorm:"size:20" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	// Estado anterior e posterior em JSON
	BeforeData datatypes.JSON `json:"before_data"`
	AfterData  datatypes.JSON `json:"after_data"`
}
