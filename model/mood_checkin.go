package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MoodCheckin 心情打卡（SOS 的 MOOD 触发源）
type MoodCheckin struct {
	ID           uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index"`
	MoodScore    int             `json:"mood_score" gorm:"not null"` // 1-5，1 最差
	Tags         json.RawMessage `json:"tags,omitempty" gorm:"type:jsonb"`
	Note         *string         `json:"note,omitempty" gorm:"type:text"`
	WantsCompany bool            `json:"wants_company" gorm:"not null;default:false"`
	CreatedAt    time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (MoodCheckin) TableName() string {
	return "mood_checkins"
}

func (c *MoodCheckin) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// TriggersSos 打卡是否满足 SOS 触发条件（想找人陪 或 心情 <= 2）
func (c *MoodCheckin) TriggersSos() bool {
	return c.WantsCompany || c.MoodScore <= 2
}
