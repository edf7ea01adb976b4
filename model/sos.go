package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SosTriggerType 告警触发方式
type SosTriggerType string

const (
	SosTriggerManual SosTriggerType = "MANUAL"
	SosTriggerMood   SosTriggerType = "MOOD"
)

// SosSeverity 告警级别
type SosSeverity string

const (
	SosSeverityLow  SosSeverity = "LOW"
	SosSeverityMed  SosSeverity = "MED"
	SosSeverityHigh SosSeverity = "HIGH"
)

// SosAlertStatus 告警状态机：OPEN -> ESCALATED -> CLOSED；CLOSED 为终态
type SosAlertStatus string

const (
	SosAlertOpen      SosAlertStatus = "OPEN"
	SosAlertEscalated SosAlertStatus = "ESCALATED"
	SosAlertClosed    SosAlertStatus = "CLOSED"
)

// SosRecipientStatus 接收人响应状态
type SosRecipientStatus string

const (
	SosRecipientNotified SosRecipientStatus = "NOTIFIED"
	SosRecipientAccepted SosRecipientStatus = "ACCEPTED"
	SosRecipientDeclined SosRecipientStatus = "DECLINED"
)

// SosAlert SOS 告警表
type SosAlert struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID     uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	TriggerType SosTriggerType `json:"trigger_type" gorm:"type:varchar(20);not null"`
	Severity    SosSeverity    `json:"severity" gorm:"type:varchar(20);not null"`
	Status      SosAlertStatus `json:"status" gorm:"type:varchar(20);not null;default:'OPEN'"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
	ClosedAt    *time.Time     `json:"closed_at,omitempty"`
}

func (SosAlert) TableName() string {
	return "sos_alerts"
}

func (a *SosAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// SosRecipient 告警接收人表（每 (alert, buddy) 一行，响应为幂等覆盖写）
type SosRecipient struct {
	ID          uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey"`
	AlertID     uuid.UUID          `json:"alert_id" gorm:"type:uuid;not null;index:idx_sos_recipients_alert_buddy,unique"`
	BuddyID     uuid.UUID          `json:"buddy_id" gorm:"type:uuid;not null;index:idx_sos_recipients_alert_buddy,unique"`
	Status      SosRecipientStatus `json:"status" gorm:"type:varchar(20);not null;default:'NOTIFIED'"`
	Message     *string            `json:"message,omitempty" gorm:"type:text"`
	EtaMinutes  *int               `json:"eta_minutes,omitempty"`
	RespondedAt *time.Time         `json:"responded_at,omitempty"`
}

func (SosRecipient) TableName() string {
	return "sos_recipients"
}

func (r *SosRecipient) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
