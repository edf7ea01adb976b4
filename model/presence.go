package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PresenceStatus 可用性状态
type PresenceStatus string

const (
	PresenceAvailable PresenceStatus = "AVAILABLE"
	PresenceBusy      PresenceStatus = "BUSY"
	PresenceOffline   PresenceStatus = "OFFLINE"
)

// BuddyPresence 用户可用性（每用户一行，upsert；无行视为 OFFLINE）
type BuddyPresence struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID      `json:"user_id" gorm:"type:uuid;not null;uniqueIndex"`
	Status    PresenceStatus `json:"status" gorm:"type:varchar(20);not null;default:'OFFLINE'"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (BuddyPresence) TableName() string {
	return "buddy_presence"
}

func (p *BuddyPresence) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
