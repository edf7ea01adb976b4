package service

import (
	"errors"
	"fmt"
	"time"

	"buddy_sos/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PresenceService struct {
	db *gorm.DB
}

func NewPresenceService(db *gorm.DB) *PresenceService {
	return &PresenceService{db: db}
}

// Get 读取可用性；没有行时按 OFFLINE 返回（不落库）
func (s *PresenceService) Get(userID uuid.UUID) (*model.BuddyPresence, error) {
	var presence model.BuddyPresence
	err := s.db.Where("user_id = ?", userID).First(&presence).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &model.BuddyPresence{
				UserID:    userID,
				Status:    model.PresenceOffline,
				UpdatedAt: time.Now().UTC(),
			}, nil
		}
		return nil, fmt.Errorf("failed to query presence: %w", err)
	}
	return &presence, nil
}

// Update upsert 可用性（每用户一行，无历史）
func (s *PresenceService) Update(userID uuid.UUID, status model.PresenceStatus) (*model.BuddyPresence, error) {
	var presence model.BuddyPresence
	err := s.db.Transaction(func(tx *gorm.DB) error {
		findErr := tx.Where("user_id = ?", userID).First(&presence).Error
		if findErr == nil {
			presence.Status = status
			presence.UpdatedAt = time.Now().UTC()
			return tx.Model(&model.BuddyPresence{}).Where("id = ?", presence.ID).
				Updates(map[string]interface{}{"status": status, "updated_at": presence.UpdatedAt}).Error
		}
		if !errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to query presence: %w", findErr)
		}
		presence = model.BuddyPresence{UserID: userID, Status: status}
		return tx.Create(&presence).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update presence: %w", err)
	}
	return &presence, nil
}

// StatusMap 批量读取一组用户的可用性；缺行即 OFFLINE
func (s *PresenceService) StatusMap(userIDs []uuid.UUID) (map[uuid.UUID]model.PresenceStatus, error) {
	statuses := make(map[uuid.UUID]model.PresenceStatus, len(userIDs))
	for _, id := range userIDs {
		statuses[id] = model.PresenceOffline
	}
	if len(userIDs) == 0 {
		return statuses, nil
	}

	var rows []model.BuddyPresence
	if err := s.db.Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query presence batch: %w", err)
	}
	for _, p := range rows {
		statuses[p.UserID] = p.Status
	}
	return statuses, nil
}

// UpdateLocation 更新用户最近位置
func (s *PresenceService) UpdateLocation(userID uuid.UUID, latitude, longitude float64) error {
	result := s.db.Model(&model.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"latitude": latitude, "longitude": longitude})
	if result.Error != nil {
		return fmt.Errorf("failed to update location: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user not found", ErrNotFound)
	}
	return nil
}
