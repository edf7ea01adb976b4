package service

import (
	"testing"

	"buddy_sos/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRankBuddies_TrustOrdering 测试按信任等级排序
//
// 测试目标：
// - 同为 AVAILABLE、距离都未知时，信任高的排前面
// - limit 截断生效
func TestRankBuddies_TrustOrdering(t *testing.T) {
	db := newTestDB(t)
	svc := NewRankingService(db)
	owner := createTestUser(t, db, "owner", nil, nil)

	var buddies []*model.User
	for _, trust := range []int{1, 3, 5, 2, 4} {
		u := createTestUser(t, db, "buddy", nil, nil)
		linkAccepted(t, db, owner.ID, u.ID, trust)
		setPresence(t, db, u.ID, model.PresenceAvailable)
		buddies = append(buddies, u)
	}

	ranked, err := svc.RankBuddies(owner.ID, 0, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 5)

	// 信任 5 -> 1
	assert.Equal(t, []uuid.UUID{
		buddies[2].ID, buddies[4].ID, buddies[1].ID, buddies[3].ID, buddies[0].ID,
	}, rankedIDs(ranked))

	// limit 截断
	top2, err := svc.RankBuddies(owner.ID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{buddies[2].ID, buddies[4].ID}, rankedIDs(top2))
}

// TestRankBuddies_AvailabilityBeatsTrust 测试可用性压过信任
//
// 测试目标：
// - AVAILABLE trust 1 仍排在 BUSY trust 5 前面（100 分档差 > 40 分信任差）
func TestRankBuddies_AvailabilityBeatsTrust(t *testing.T) {
	db := newTestDB(t)
	svc := NewRankingService(db)
	owner := createTestUser(t, db, "owner", nil, nil)

	busyTrusted := createTestUser(t, db, "busy", nil, nil)
	linkAccepted(t, db, owner.ID, busyTrusted.ID, 5)
	setPresence(t, db, busyTrusted.ID, model.PresenceBusy)

	availLowTrust := createTestUser(t, db, "avail", nil, nil)
	linkAccepted(t, db, owner.ID, availLowTrust.ID, 1)
	setPresence(t, db, availLowTrust.ID, model.PresenceAvailable)

	ranked, err := svc.RankBuddies(owner.ID, 0, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, availLowTrust.ID, ranked[0].BuddyID)
	assert.Equal(t, busyTrusted.ID, ranked[1].BuddyID)
}

// TestRankBuddies_ExcludesOfflineAndQuietHours 测试排除规则
//
// 测试目标：
// - OFFLINE 被剔除（没有 presence 行的也按 OFFLINE 处理）
// - 处于免打扰时段的 buddy 被剔除（用全天窗口保证命中）
func TestRankBuddies_ExcludesOfflineAndQuietHours(t *testing.T) {
	db := newTestDB(t)
	svc := NewRankingService(db)
	owner := createTestUser(t, db, "owner", nil, nil)

	available := createTestUser(t, db, "avail", nil, nil)
	linkAccepted(t, db, owner.ID, available.ID, 3)
	setPresence(t, db, available.ID, model.PresenceAvailable)

	offline := createTestUser(t, db, "offline", nil, nil)
	linkAccepted(t, db, owner.ID, offline.ID, 5)
	setPresence(t, db, offline.ID, model.PresenceOffline)

	noPresenceRow := createTestUser(t, db, "silent", nil, nil)
	linkAccepted(t, db, owner.ID, noPresenceRow.ID, 5)

	quiet := createTestUser(t, db, "quiet", nil, nil)
	linkAccepted(t, db, owner.ID, quiet.ID, 5)
	setPresence(t, db, quiet.ID, model.PresenceAvailable)
	require.NoError(t, db.Create(&model.UserSettings{
		UserID:          quiet.ID,
		QuietHoursStart: ptrString("00:00"),
		QuietHoursEnd:   ptrString("23:59"),
	}).Error)

	ranked, err := svc.RankBuddies(owner.ID, 0, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, available.ID, ranked[0].BuddyID)
}

// TestRankBuddies_RadiusKeepsUnknownDistance 测试半径过滤
//
// 测试目标：
// - 已知距离超出半径的被剔除
// - 距离未知的保留（疑点利益）
// - 半径内的带实际距离返回
func TestRankBuddies_RadiusKeepsUnknownDistance(t *testing.T) {
	db := newTestDB(t)
	svc := NewRankingService(db)
	// owner 在纽约
	owner := createTestUser(t, db, "owner", ptrFloat(40.7128), ptrFloat(-74.0060))

	// 近：曼哈顿上城，几公里
	near := createTestUser(t, db, "near", ptrFloat(40.7831), ptrFloat(-73.9712))
	linkAccepted(t, db, owner.ID, near.ID, 3)
	setPresence(t, db, near.ID, model.PresenceAvailable)

	// 远：洛杉矶，约 3936 公里
	far := createTestUser(t, db, "far", ptrFloat(34.0522), ptrFloat(-118.2437))
	linkAccepted(t, db, owner.ID, far.ID, 3)
	setPresence(t, db, far.ID, model.PresenceAvailable)

	// 未知位置
	unknown := createTestUser(t, db, "unknown", nil, nil)
	linkAccepted(t, db, owner.ID, unknown.ID, 3)
	setPresence(t, db, unknown.ID, model.PresenceAvailable)

	radius := 50.0
	ranked, err := svc.RankBuddies(owner.ID, 0, &radius)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{near.ID, unknown.ID}, rankedIDs(ranked))

	// near 带实际距离且排在 unknown 前（距离分 <10 对 250）
	assert.Equal(t, near.ID, ranked[0].BuddyID)
	require.NotNil(t, ranked[0].DistanceKm)
	assert.Less(t, *ranked[0].DistanceKm, 15.0)
	assert.Nil(t, ranked[1].DistanceKm)
}

// TestRankBuddies_NoBuddies 测试没有任何 accepted 链接
func TestRankBuddies_NoBuddies(t *testing.T) {
	db := newTestDB(t)
	svc := NewRankingService(db)
	owner := createTestUser(t, db, "owner", nil, nil)

	_, err := svc.RankBuddies(owner.ID, 0, nil)
	assert.ErrorIs(t, err, ErrNoBuddies)
}

// TestSelectRecipients_FallbackToAllPeers 测试选人兜底
//
// 测试目标：
// - 严格排序有结果时按排序选
// - 全部被过滤掉（如唯一 buddy OFFLINE）时回退到全部 accepted peer，
//   有关系存在就绝不让求救静默落空
func TestSelectRecipients_FallbackToAllPeers(t *testing.T) {
	db := newTestDB(t)
	svc := NewRankingService(db)
	owner := createTestUser(t, db, "owner", nil, nil)

	offlineOnly := createTestUser(t, db, "offline", nil, nil)
	linkAccepted(t, db, owner.ID, offlineOnly.ID, 3)
	setPresence(t, db, offlineOnly.ID, model.PresenceOffline)

	selected, err := svc.SelectRecipients(owner.ID, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{offlineOnly.ID}, selected)

	// 有可用 buddy 时走严格排序，不触发兜底
	available := createTestUser(t, db, "avail", nil, nil)
	linkAccepted(t, db, owner.ID, available.ID, 3)
	setPresence(t, db, available.ID, model.PresenceAvailable)

	selected, err = svc.SelectRecipients(owner.ID, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{available.ID}, selected)
}

// TestInQuietHours_MidnightWrap 测试免打扰窗口的跨午夜语义
//
// 测试目标：
// - start <= end：普通闭区间
// - start > end：跨午夜，now >= start 或 now <= end
// - 缺任一端或格式非法视为不启用
func TestInQuietHours_MidnightWrap(t *testing.T) {
	settings := func(start, end *string) *model.UserSettings {
		return &model.UserSettings{QuietHoursStart: start, QuietHoursEnd: end}
	}
	minute := func(h, m int) int { return h*60 + m }

	// 普通窗口 13:00-15:00
	s := settings(ptrString("13:00"), ptrString("15:00"))
	assert.True(t, inQuietHours(s, minute(14, 0)))
	assert.True(t, inQuietHours(s, minute(13, 0)))
	assert.True(t, inQuietHours(s, minute(15, 0)))
	assert.False(t, inQuietHours(s, minute(12, 59)))
	assert.False(t, inQuietHours(s, minute(15, 1)))

	// 跨午夜 22:00-07:00
	s = settings(ptrString("22:00"), ptrString("07:00"))
	assert.True(t, inQuietHours(s, minute(23, 30)))
	assert.True(t, inQuietHours(s, minute(3, 0)))
	assert.True(t, inQuietHours(s, minute(7, 0)))
	assert.False(t, inQuietHours(s, minute(12, 0)))
	assert.False(t, inQuietHours(s, minute(21, 59)))

	// 缺端/非法格式不启用
	assert.False(t, inQuietHours(settings(nil, ptrString("07:00")), minute(3, 0)))
	assert.False(t, inQuietHours(settings(ptrString("bad"), ptrString("07:00")), minute(3, 0)))
}

func rankedIDs(ranked []RankedBuddy) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.BuddyID)
	}
	return ids
}
