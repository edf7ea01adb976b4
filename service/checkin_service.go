package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"buddy_sos/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CheckinService struct {
	db *gorm.DB
}

func NewCheckinService(db *gorm.DB) *CheckinService {
	return &CheckinService{db: db}
}

// Create 创建心情打卡
func (s *CheckinService) Create(userID uuid.UUID, moodScore int, tags []string, note *string, wantsCompany bool) (*model.MoodCheckin, error) {
	if moodScore < 1 || moodScore > 5 {
		return nil, fmt.Errorf("mood score must be between 1 and 5")
	}

	var tagsJSON json.RawMessage
	if len(tags) > 0 {
		data, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tags: %w", err)
		}
		tagsJSON = data
	}

	checkin := &model.MoodCheckin{
		UserID:       userID,
		MoodScore:    moodScore,
		Tags:         tagsJSON,
		Note:         note,
		WantsCompany: wantsCompany,
	}
	if err := s.db.Create(checkin).Error; err != nil {
		return nil, fmt.Errorf("failed to create checkin: %w", err)
	}
	return checkin, nil
}

// ListMine 自己的打卡，新的在前
func (s *CheckinService) ListMine(userID uuid.UUID, limit int) ([]model.MoodCheckin, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	var checkins []model.MoodCheckin
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&checkins).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query checkins: %w", err)
	}
	return checkins, nil
}

// Get 按 id 取打卡。不存在 404，不是自己的 403
func (s *CheckinService) Get(checkinID, actorID uuid.UUID) (*model.MoodCheckin, error) {
	var checkin model.MoodCheckin
	if err := s.db.Where("id = ?", checkinID).First(&checkin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: checkin not found", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query checkin: %w", err)
	}
	if checkin.UserID != actorID {
		return nil, fmt.Errorf("%w: checkin does not belong to you", ErrForbidden)
	}
	return &checkin, nil
}
