package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole 用户角色
type UserRole string

const (
	RoleVeteran UserRole = "VETERAN"
	RoleBuddy   UserRole = "BUDDY"
)

// User 用户表（身份由外部签发，核心只读取 id / 名称 / 最近位置）
type User struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email     string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	FullName  string    `json:"full_name" gorm:"type:varchar(120);not null"`
	Role      UserRole  `json:"role" gorm:"type:varchar(20);not null;default:'VETERAN'"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate 生成主键 UUID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HasLocation 是否有最近位置
func (u *User) HasLocation() bool {
	return u.Latitude != nil && u.Longitude != nil
}
