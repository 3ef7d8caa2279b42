package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Cell struct {
	ID           string  `gorm:"type:varchar(36);primaryKey"`
	Name         string  `gorm:"size:100;not null"`
	Slug         string  `gorm:"size:120;index;not null"`
	SupervisorID *string `gorm:"type:varchar(36);index"`
	Supervisor   *User   `gorm:"foreignKey:SupervisorID;constraint:OnDelete:SET NULL"`
	// Sempre um membro atual da célula
	SecretaryID *string `gorm:"type:varchar(36)"`
	Secretary   *User   `gorm:"foreignKey:SecretaryID;constraint:OnDelete:SET NULL"`
	MeetingDay  string  `gorm:"size:20"`
	MeetingTime string  `gorm:"size:10"`
	Address     string  `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Leaders []CellLeader `gorm:"constraint:OnDelete:CASCADE"`
}

func (c *Cell) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// CellLeader é a tabela de junção células x líderes.
type CellLeader struct {
	CellID    string `gorm:"type:varchar(36);primaryKey"`
	UserID    string `gorm:"type:varchar(36);primaryKey;index"`
	User      *User  `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}
