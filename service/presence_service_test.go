package service

import (
	"testing"

	"buddy_sos/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPresence_DefaultOffline 测试无记录时视为 OFFLINE
func TestPresence_DefaultOffline(t *testing.T) {
	db := newTestDB(t)
	svc := NewPresenceService(db)
	u := createTestUser(t, db, "alice", nil, nil)

	p, err := svc.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PresenceOffline, p.Status)
}

// TestPresence_UpsertAndBatch 测试更新与批量读取
//
// 测试目标：
// - 第一次 Update 落新行，第二次覆盖同一行
// - StatusMap 对没有记录的用户补 OFFLINE
func TestPresence_UpsertAndBatch(t *testing.T) {
	db := newTestDB(t)
	svc := NewPresenceService(db)
	a := createTestUser(t, db, "alice", nil, nil)
	b := createTestUser(t, db, "bob", nil, nil)

	_, err := svc.Update(a.ID, model.PresenceAvailable)
	require.NoError(t, err)
	p, err := svc.Update(a.ID, model.PresenceBusy)
	require.NoError(t, err)
	assert.Equal(t, model.PresenceBusy, p.Status)

	// 仍然只有一行
	var count int64
	require.NoError(t, db.Model(&model.BuddyPresence{}).Where("user_id = ?", a.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	statuses, err := svc.StatusMap([]uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, model.PresenceBusy, statuses[a.ID])
	assert.Equal(t, model.PresenceOffline, statuses[b.ID])
}

// TestUpdateLocation 测试位置上报
//
// 测试目标：
// - 坐标写到用户行
// - 不存在的用户报 ErrNotFound
func TestUpdateLocation(t *testing.T) {
	db := newTestDB(t)
	svc := NewPresenceService(db)
	u := createTestUser(t, db, "alice", nil, nil)

	require.NoError(t, svc.UpdateLocation(u.ID, 40.7128, -74.0060))

	var reloaded model.User
	require.NoError(t, db.Where("id = ?", u.ID).First(&reloaded).Error)
	require.True(t, reloaded.HasLocation())
	assert.Equal(t, 40.7128, *reloaded.Latitude)

	err := svc.UpdateLocation(uuid.New(), 1, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
