package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BuddyLinkStatus 信任链接状态（封闭枚举，BLOCKED 为终态）
type BuddyLinkStatus string

const (
	BuddyLinkPending  BuddyLinkStatus = "PENDING"
	BuddyLinkAccepted BuddyLinkStatus = "ACCEPTED"
	BuddyLinkBlocked  BuddyLinkStatus = "BLOCKED"
)

// BuddyLink 信任链接表（有向：requester 邀请 target；ACCEPTED 后对双方对称生效）
// 约束：任意无序对 {requester, target} 最多存在一条链接（双向查重）
type BuddyLink struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	RequesterID uuid.UUID       `json:"requester_id" gorm:"type:uuid;not null;index:idx_buddy_links_pair,unique"`
	TargetID    uuid.UUID       `json:"target_id" gorm:"type:uuid;not null;index:idx_buddy_links_pair,unique"`
	Status      BuddyLinkStatus `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	TrustLevel  int             `json:"trust_level" gorm:"not null;default:3"` // 1-5，5 最高
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

func (BuddyLink) TableName() string {
	return "buddy_links"
}

func (l *BuddyLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// OtherSide 返回链接中另一方的用户 ID
func (l *BuddyLink) OtherSide(userID uuid.UUID) uuid.UUID {
	if l.RequesterID == userID {
		return l.TargetID
	}
	return l.RequesterID
}

// Involves 用户是否是链接的一方
func (l *BuddyLink) Involves(userID uuid.UUID) bool {
	return l.RequesterID == userID || l.TargetID == userID
}
