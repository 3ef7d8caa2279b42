package models

import "time"

// DateLayout é o formato de PrayerLog.PrayedOn.
const DateLayout = "2006-01-02"

// PrayerLog marca que o usuário orou no dia. No máximo um por (usuário, dia).
type PrayerLog struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"type:varchar(36);not null;uniqueIndex:idx_prayer_user_day"`
	User      *User  `gorm:"constraint:OnDelete:CASCADE"`
	PrayedOn  string `gorm:"size:10;not null;uniqueIndex:idx_prayer_user_day;index"`
	CreatedAt time.Time
}
