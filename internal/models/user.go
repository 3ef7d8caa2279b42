package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           string     `gorm:"type:varchar(36);primaryKey"`
	Name         string     `gorm:"size:100;not null"`
	Email        string     `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string     `gorm:"size:255;not null"`
	Phone        string     `gorm:"size:30"`
	Role         UserRole   `gorm:"size:20;not null;default:MEMBRO;index"`
	Status       UserStatus `gorm:"size:10;not null;default:ACTIVE"`
	// Sem FK no banco (users <-> cells seria cíclico); DeleteCell desvincula os membros
	CellID    *string `gorm:"type:varchar(36);index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleMembro
	}
	if u.Status == "" {
		u.Status = StatusActive
	}
	return nil
}

func (u *User) IsActive() bool {
	return u.Status == StatusActive
}
