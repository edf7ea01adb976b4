package service

import (
	"errors"
	"fmt"

	"buddy_sos/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// SettingsUpdate 部分更新载荷，nil 字段不改动
type SettingsUpdate struct {
	QuietHoursStart      *string  `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd        *string  `json:"quiet_hours_end,omitempty"`
	SharePreciseLocation *bool    `json:"share_precise_location,omitempty"`
	SosRadiusKm          *float64 `json:"sos_radius_km,omitempty"`
}

// GetOrCreate 取设置，没有则建默认行
func (s *SettingsService) GetOrCreate(userID uuid.UUID) (*model.UserSettings, error) {
	var settings model.UserSettings
	err := s.db.Where("user_id = ?", userID).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}

	radius := 50.0
	settings = model.UserSettings{
		UserID:               userID,
		SharePreciseLocation: true,
		SosRadiusKm:          &radius,
	}
	if err := s.db.Create(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to create settings: %w", err)
	}
	return &settings, nil
}

// Update 部分更新设置
func (s *SettingsService) Update(userID uuid.UUID, update SettingsUpdate) (*model.UserSettings, error) {
	settings, err := s.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]interface{})
	if update.QuietHoursStart != nil {
		settings.QuietHoursStart = update.QuietHoursStart
		changes["quiet_hours_start"] = *update.QuietHoursStart
	}
	if update.QuietHoursEnd != nil {
		settings.QuietHoursEnd = update.QuietHoursEnd
		changes["quiet_hours_end"] = *update.QuietHoursEnd
	}
	if update.SharePreciseLocation != nil {
		settings.SharePreciseLocation = *update.SharePreciseLocation
		changes["share_precise_location"] = *update.SharePreciseLocation
	}
	if update.SosRadiusKm != nil {
		settings.SosRadiusKm = update.SosRadiusKm
		changes["sos_radius_km"] = *update.SosRadiusKm
	}
	if len(changes) == 0 {
		return settings, nil
	}

	if err := s.db.Model(&model.UserSettings{}).Where("id = ?", settings.ID).
		Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return settings, nil
}

// SettingsMap 批量读取一组用户的设置（缺行的用户不在 map 中）
func (s *SettingsService) SettingsMap(userIDs []uuid.UUID) (map[uuid.UUID]model.UserSettings, error) {
	result := make(map[uuid.UUID]model.UserSettings, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	var rows []model.UserSettings
	if err := s.db.Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query settings batch: %w", err)
	}
	for _, row := range rows {
		result[row.UserID] = row
	}
	return result, nil
}

// SosRadiusFor 用户的 SOS 半径，缺省回退 defaultRadius
func (s *SettingsService) SosRadiusFor(userID uuid.UUID, defaultRadius float64) float64 {
	var settings model.UserSettings
	err := s.db.Where("user_id = ?", userID).First(&settings).Error
	if err != nil || settings.SosRadiusKm == nil {
		return defaultRadius
	}
	return *settings.SosRadiusKm
}
