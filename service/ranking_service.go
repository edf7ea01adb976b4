package service

import (
	"fmt"
	"sort"
	"time"

	"buddy_sos/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RankedBuddy 排名后的候选人
type RankedBuddy struct {
	BuddyID    uuid.UUID            `json:"buddy_id"`
	BuddyName  string               `json:"buddy_name"`
	BuddyEmail string               `json:"buddy_email"`
	TrustLevel int                  `json:"trust_level"`
	Presence   model.PresenceStatus `json:"presence_status"`
	DistanceKm *float64             `json:"distance_km,omitempty"`
	RankScore  float64              `json:"rank_score"`
}

// RankingService 候选人选择器：组合信任链接、可用性与地理评分
type RankingService struct {
	db       *gorm.DB
	buddySvc *BuddyService
	presSvc  *PresenceService
	setSvc   *SettingsService
}

func NewRankingService(db *gorm.DB) *RankingService {
	return &RankingService{
		db:       db,
		buddySvc: NewBuddyService(db),
		presSvc:  NewPresenceService(db),
		setSvc:   NewSettingsService(db),
	}
}

// RankBuddies 严格排序：
//  1. 取 owner 的全部 accepted buddy（对称视图），为空报 ErrNoBuddies
//  2. 剔除处于免打扰时段的候选人（分钟级比较，支持跨午夜）
//  3. 剔除 OFFLINE
//  4. 逐个算距离和 rank score
//  5. 给了 radius 时丢掉已知距离超出者；距离未知的保留
//  6. 按 score 升序，稳定排序保持枚举顺序作为平局 tiebreak，截断 limit
func (s *RankingService) RankBuddies(ownerID uuid.UUID, limit int, radiusKm *float64) ([]RankedBuddy, error) {
	links, err := s.buddySvc.acceptedLinksOf(ownerID)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%w for user %s", ErrNoBuddies, ownerID)
	}

	buddyIDs := make([]uuid.UUID, 0, len(links))
	trustMap := make(map[uuid.UUID]int, len(links))
	for _, l := range links {
		peer := l.OtherSide(ownerID)
		buddyIDs = append(buddyIDs, peer)
		trustMap[peer] = l.TrustLevel
	}

	// owner 位置
	var owner model.User
	if err := s.db.Where("id = ?", ownerID).First(&owner).Error; err != nil {
		return nil, fmt.Errorf("failed to load owner: %w", err)
	}

	// buddy 用户行
	var users []model.User
	if err := s.db.Where("id IN ?", buddyIDs).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load buddies: %w", err)
	}
	userMap := make(map[uuid.UUID]model.User, len(users))
	for _, u := range users {
		userMap[u.ID] = u
	}

	presenceMap, err := s.presSvc.StatusMap(buddyIDs)
	if err != nil {
		return nil, err
	}
	settingsMap, err := s.setSvc.SettingsMap(buddyIDs)
	if err != nil {
		return nil, err
	}

	nowMinute := minuteOfDay(time.Now().UTC())

	ranked := make([]RankedBuddy, 0, len(buddyIDs))
	for _, bid := range buddyIDs {
		u, ok := userMap[bid]
		if !ok {
			continue
		}

		if settings, ok := settingsMap[bid]; ok && inQuietHours(&settings, nowMinute) {
			continue
		}

		presence := presenceMap[bid]
		if presence == model.PresenceOffline {
			continue
		}

		dist := DistanceKm(owner.Latitude, owner.Longitude, u.Latitude, u.Longitude)
		trust := trustMap[bid]

		ranked = append(ranked, RankedBuddy{
			BuddyID:    bid,
			BuddyName:  u.FullName,
			BuddyEmail: u.Email,
			TrustLevel: trust,
			Presence:   presence,
			DistanceKm: dist,
			RankScore:  rankScore(presence, trust, dist),
		})
	}

	// 半径过滤：只剔除"已知超出"的，距离未知的按疑点利益保留
	if radiusKm != nil {
		filtered := ranked[:0]
		for _, r := range ranked {
			if r.DistanceKm == nil || *r.DistanceKm <= *radiusKm {
				filtered = append(filtered, r)
			}
		}
		ranked = filtered
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RankScore < ranked[j].RankScore
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// SelectRecipients 告警收件人选择：先走严格排序；全被过滤掉时无条件回退到
// 全部 accepted buddy（截断 limit）——有关系存在就绝不让求救静默落空
func (s *RankingService) SelectRecipients(ownerID uuid.UUID, limit int, radiusKm *float64) ([]uuid.UUID, error) {
	ranked, err := s.RankBuddies(ownerID, limit, radiusKm)
	if err != nil {
		return nil, err
	}

	selected := make([]uuid.UUID, 0, len(ranked))
	for _, r := range ranked {
		selected = append(selected, r.BuddyID)
	}
	if len(selected) > 0 {
		return selected, nil
	}

	all, err := s.buddySvc.AcceptedPeersOf(ownerID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// minuteOfDay 当天第几分钟
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// inQuietHours 免打扰判断。start <= end 时窗口为 [start, end]；
// 否则跨午夜：now >= start 或 now <= end
func inQuietHours(settings *model.UserSettings, nowMinute int) bool {
	if settings.QuietHoursStart == nil || settings.QuietHoursEnd == nil {
		return false
	}
	start, okStart := parseMinute(*settings.QuietHoursStart)
	end, okEnd := parseMinute(*settings.QuietHoursEnd)
	if !okStart || !okEnd {
		return false
	}
	if start <= end {
		return nowMinute >= start && nowMinute <= end
	}
	return nowMinute >= start || nowMinute <= end
}

// parseMinute "HH:MM" -> 当天分钟数
func parseMinute(hhmm string) (int, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, false
	}
	return minuteOfDay(t), true
}

// ValidClockTime 校验 "HH:MM" 格式
func ValidClockTime(hhmm string) bool {
	_, ok := parseMinute(hhmm)
	return ok
}
