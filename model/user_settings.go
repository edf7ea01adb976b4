package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserSettings 用户设置：免打扰时段、位置精度、SOS 半径
// 免打扰时段用 "HH:MM" 存储，可跨午夜（如 22:00 -> 07:00）
type UserSettings struct {
	ID                   uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	QuietHoursStart      *string   `json:"quiet_hours_start,omitempty" gorm:"type:varchar(5)"`
	QuietHoursEnd        *string   `json:"quiet_hours_end,omitempty" gorm:"type:varchar(5)"`
	SharePreciseLocation bool      `json:"share_precise_location" gorm:"not null;default:true"`
	SosRadiusKm          *float64  `json:"sos_radius_km,omitempty"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (UserSettings) TableName() string {
	return "user_settings"
}

func (s *UserSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
